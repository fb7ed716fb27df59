// internal/errs/errs.go
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is a string type used for structured error reporting across the
// capture and diff pipelines. Using a custom type ensures that only the
// predefined constants can be used where a Kind is expected.
type Kind string

const (
	// -- Navigation-stage failures, classified from the transport signature --
	KindNetwork Kind = "NETWORK_ERROR"
	KindDNS     Kind = "DNS_ERROR"
	KindSSL     Kind = "SSL_ERROR"
	KindTimeout Kind = "TIMEOUT_ERROR"

	// KindContent indicates a required wait-for-selector condition was never
	// satisfied before the deadline.
	KindContent Kind = "CONTENT_ERROR"

	// KindStability indicates the page process crashed or detached mid-capture.
	KindStability Kind = "STABILITY_ERROR"

	// KindCapture indicates every screenshot fallback strategy was exhausted.
	KindCapture Kind = "CAPTURE_ERROR"

	// KindImageProcessing covers corrupt, zero-sized, or oversized raster
	// input to the diff stage.
	KindImageProcessing Kind = "IMAGE_PROCESSING_ERROR"

	// KindComparison covers failures of the pixel-matching algorithm itself.
	KindComparison Kind = "COMPARISON_ERROR"
)

// Error ties a Kind to the stage that produced it while preserving the
// underlying cause for errors.Is / errors.As chains. Callers receive exactly
// one of these per failed comparison; nothing is swallowed silently.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Stage, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error without an underlying cause.
func New(kind Kind, stage, msg string) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: msg}
}

// Wrap attaches a Kind and stage to an underlying error.
func Wrap(kind Kind, stage, msg string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from an error chain, or "" when the chain holds
// no classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether the error chain contains a classified error of the
// given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// dnsSignatures match failures where the hostname never resolved.
var dnsSignatures = []string{
	"net::ERR_NAME_NOT_RESOLVED",
	"net::ERR_NAME_RESOLUTION_FAILED",
	"net::ERR_DNS_TIMED_OUT",
	"no such host",
}

// sslSignatures match TLS handshake and certificate failures.
var sslSignatures = []string{
	"net::ERR_CERT_",
	"net::ERR_SSL_",
	"net::ERR_BAD_SSL_CLIENT_AUTH_CERT",
	"SSL_ERROR",
	"x509:",
}

// stabilitySignatures match the renderer process dying underneath us.
var stabilitySignatures = []string{
	"net::ERR_ABORTED",
	"Inspected target navigated or closed",
	"target crashed",
	"Target crashed",
	"Session closed",
	"page crashed",
	"websocket url timeout",
}

// Classify turns a raw chromedp/CDP transport error into a navigation-stage
// Error, preserving the original message as the cause. An already classified
// error passes through untouched so wrap points can be layered freely.
func Classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, stage, "operation deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, stage, "operation canceled", err)
	}

	msg := err.Error()
	for _, sig := range dnsSignatures {
		if strings.Contains(msg, sig) {
			return Wrap(KindDNS, stage, "hostname could not be resolved", err)
		}
	}
	for _, sig := range sslSignatures {
		if strings.Contains(msg, sig) {
			return Wrap(KindSSL, stage, "TLS negotiation failed", err)
		}
	}
	for _, sig := range stabilitySignatures {
		if strings.Contains(msg, sig) {
			return Wrap(KindStability, stage, "page process terminated unexpectedly", err)
		}
	}
	if strings.Contains(msg, "net::ERR_") || strings.Contains(msg, "connection refused") {
		return Wrap(KindNetwork, stage, "navigation transport failure", err)
	}
	if strings.Contains(strings.ToLower(msg), "timeout") || strings.Contains(msg, "deadline exceeded") {
		return Wrap(KindTimeout, stage, "operation timed out", err)
	}

	return Wrap(KindNetwork, stage, "unclassified navigation failure", err)
}
