// File: internal/comparison/result.go
package comparison

import (
	"encoding/base64"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/karstlabs/vizdiff/internal/capture"
	"github.com/karstlabs/vizdiff/internal/config"
	"github.com/karstlabs/vizdiff/internal/diff"
)

// Result is one completed comparison. Atomic: every field is populated
// before it is handed to a caller.
type Result struct {
	ID         string
	RequestA   capture.CaptureRequest
	RequestB   capture.CaptureRequest
	CaptureA   *capture.CaptureResult
	CaptureB   *capture.CaptureResult
	Diff       *diff.Result
	ComparedAt time.Time
}

// Metrics returns the diff metrics of a completed comparison.
func (r *Result) Metrics() diff.Metrics {
	return r.Diff.Metrics
}

// Wire shapes for the serialized result.

type wireResult struct {
	ID       string       `json:"id"`
	URLs     wirePair     `json:"urls"`
	Metadata wireMetadata `json:"metadata"`
	Images   wireImages   `json:"images"`
	Metrics  diff.Metrics `json:"metrics"`
}

type wirePair struct {
	A string `json:"A"`
	B string `json:"B"`
}

type wireImages struct {
	A    string `json:"A"`
	B    string `json:"B"`
	Diff string `json:"diff"`
}

type wireMetadata struct {
	A          wireCapture `json:"A"`
	B          wireCapture `json:"B"`
	ComparedAt time.Time   `json:"comparedAt"`
}

type wireCapture struct {
	URL            string                 `json:"url"`
	Title          string                 `json:"title"`
	Timestamp      time.Time              `json:"timestamp"`
	Viewport       config.ViewportConfig  `json:"viewport"`
	FullPage       bool                   `json:"fullPage"`
	PageDimensions capture.PageDimensions `json:"pageDimensions"`
	CaptureMethod  capture.CaptureMethod  `json:"captureMethod"`
}

// Serialize renders the result into its external JSON form, with all three
// rasters base64 encoded.
func (r *Result) Serialize() ([]byte, error) {
	out := wireResult{
		ID:   r.ID,
		URLs: wirePair{A: r.RequestA.URL, B: r.RequestB.URL},
		Metadata: wireMetadata{
			A:          captureMetadata(r.RequestA, r.CaptureA),
			B:          captureMetadata(r.RequestB, r.CaptureB),
			ComparedAt: r.ComparedAt,
		},
		Images: wireImages{
			A:    base64.StdEncoding.EncodeToString(r.CaptureA.Raster),
			B:    base64.StdEncoding.EncodeToString(r.CaptureB.Raster),
			Diff: base64.StdEncoding.EncodeToString(r.Diff.Raster),
		},
		Metrics: r.Diff.Metrics,
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(out)
}

func captureMetadata(req capture.CaptureRequest, res *capture.CaptureResult) wireCapture {
	return wireCapture{
		URL:            res.FinalURL,
		Title:          res.Title,
		Timestamp:      res.TimestampUTC,
		Viewport:       res.Viewport,
		FullPage:       req.FullPage,
		PageDimensions: res.PageDimensions,
		CaptureMethod:  res.Method,
	}
}
