// File: internal/capture/capturer_test.go
package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/errs"
)

// fakeShot scripts each strategy's outcome and counts invocations.
type fakeShot struct {
	fullPageBuf []byte
	fullPageErr error

	contentW, contentH float64
	contentErr         error

	clippedBuf []byte
	clippedErr error

	viewportBuf []byte
	viewportErr error

	fullPageCalls, clippedCalls, viewportCalls int
}

func (f *fakeShot) FullPage(context.Context) ([]byte, error) {
	f.fullPageCalls++
	return f.fullPageBuf, f.fullPageErr
}

func (f *fakeShot) ContentSize(context.Context) (float64, float64, error) {
	return f.contentW, f.contentH, f.contentErr
}

func (f *fakeShot) Clipped(_ context.Context, _, _ float64) ([]byte, error) {
	f.clippedCalls++
	return f.clippedBuf, f.clippedErr
}

func (f *fakeShot) Viewport(context.Context) ([]byte, error) {
	f.viewportCalls++
	return f.viewportBuf, f.viewportErr
}

func TestCapturePrimaryStrategySucceeds(t *testing.T) {
	shot := &fakeShot{fullPageBuf: []byte("native")}
	c := NewCapturer(zap.NewNop())

	buf, method, err := c.Capture(context.Background(), shot, true)
	require.NoError(t, err)

	assert.Equal(t, []byte("native"), buf)
	assert.Equal(t, MethodStandardFullPage, method)
	assert.Zero(t, shot.clippedCalls, "later strategies must not run after a success")
	assert.Zero(t, shot.viewportCalls)
}

func TestCaptureFallsBackToClip(t *testing.T) {
	shot := &fakeShot{
		fullPageErr: errors.New("full-page capture unsupported"),
		contentW:    1280, contentH: 4000,
		clippedBuf: []byte("clipped"),
	}
	c := NewCapturer(zap.NewNop())

	buf, method, err := c.Capture(context.Background(), shot, true)
	require.NoError(t, err)

	assert.Equal(t, []byte("clipped"), buf)
	assert.Equal(t, MethodClipFullPage, method, "method must reflect the strategy that actually succeeded")
	assert.Equal(t, 1, shot.fullPageCalls, "each state is attempted exactly once")
}

func TestCaptureDegradesToViewport(t *testing.T) {
	shot := &fakeShot{
		fullPageErr: errors.New("full-page broken"),
		contentW:    0, contentH: 0, // invalid extents sink the clip strategy
		viewportBuf: []byte("viewport"),
	}
	c := NewCapturer(zap.NewNop())

	buf, method, err := c.Capture(context.Background(), shot, true)
	require.NoError(t, err)

	assert.Equal(t, []byte("viewport"), buf)
	assert.Equal(t, MethodFallbackViewport, method)
	assert.Zero(t, shot.clippedCalls, "invalid extents must short-circuit the clip capture")
}

func TestCaptureClipRejectsOversizedExtents(t *testing.T) {
	shot := &fakeShot{
		fullPageErr: errors.New("nope"),
		contentW:    maxClipDim + 1, contentH: 500,
		viewportBuf: []byte("viewport"),
	}
	c := NewCapturer(zap.NewNop())

	_, method, err := c.Capture(context.Background(), shot, true)
	require.NoError(t, err)
	assert.Equal(t, MethodFallbackViewport, method)
	assert.Zero(t, shot.clippedCalls)
}

func TestCaptureViewportOnlyRequest(t *testing.T) {
	shot := &fakeShot{viewportBuf: []byte("viewport")}
	c := NewCapturer(zap.NewNop())

	_, method, err := c.Capture(context.Background(), shot, false)
	require.NoError(t, err)

	assert.Equal(t, MethodViewport, method)
	assert.Zero(t, shot.fullPageCalls, "viewport-only requests never try full-page strategies")
}

func TestCaptureAllStrategiesExhausted(t *testing.T) {
	primary := errors.New("primary capture failed")
	shot := &fakeShot{
		fullPageErr: primary,
		contentErr:  errors.New("measure failed"),
		viewportErr: errors.New("viewport failed"),
	}
	c := NewCapturer(zap.NewNop())

	_, _, err := c.Capture(context.Background(), shot, true)
	require.Error(t, err)

	assert.Equal(t, errs.KindCapture, errs.KindOf(err))
	assert.ErrorIs(t, err, primary, "the original first-state error must propagate")
}

func TestCaptureEmptyBufferIsFailure(t *testing.T) {
	shot := &fakeShot{
		fullPageBuf: nil, // success with no bytes is still a failure
		contentW:    800, contentH: 600,
		clippedBuf: []byte("clipped"),
	}
	c := NewCapturer(zap.NewNop())

	buf, method, err := c.Capture(context.Background(), shot, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("clipped"), buf)
	assert.Equal(t, MethodClipFullPage, method)
}
