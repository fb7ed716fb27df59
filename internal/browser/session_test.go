// File: internal/browser/session_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/config"
)

// newStubSession builds a Session around a plain cancelable context instead
// of a live browser allocator, enough to exercise lifecycle and validation
// logic without launching Chrome.
func newStubSession(t *testing.T) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		logger:          zap.NewNop(),
		viewport:        config.ViewportConfig{Width: 1280, Height: 720},
		allocatorCtx:    ctx,
		allocatorCancel: cancel,
	}
}

func TestSetViewportValidation(t *testing.T) {
	testCases := []struct {
		name    string
		width   int
		height  int
		wantErr bool
	}{
		{"typical desktop", 1920, 1080, false},
		{"minimum valid", 1, 1, false},
		{"at the cap", MaxViewportDim, MaxViewportDim, false},
		{"zero width", 0, 600, true},
		{"negative height", 800, -1, true},
		{"width over cap", MaxViewportDim + 1, 600, true},
		{"height over cap", 800, MaxViewportDim + 1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStubSession(t)
			defer s.Dispose(context.Background())

			err := s.SetViewport(tc.width, tc.height)
			if tc.wantErr {
				assert.Error(t, err)
				// A rejected viewport must leave the previous one untouched.
				assert.Equal(t, config.ViewportConfig{Width: 1280, Height: 720}, s.Viewport())
			} else {
				require.NoError(t, err)
				assert.Equal(t, config.ViewportConfig{Width: tc.width, Height: tc.height}, s.Viewport())
			}
		})
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	s := newStubSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.Dispose(ctx))
	require.NoError(t, s.Dispose(ctx), "second dispose must be a no-op")
}

func TestDisposedSessionRefusesPages(t *testing.T) {
	s := newStubSession(t)
	require.NoError(t, s.Dispose(context.Background()))

	_, err := s.OpenPage(context.Background())
	assert.ErrorIs(t, err, ErrSessionDisposed)

	assert.ErrorIs(t, s.SetViewport(800, 600), ErrSessionDisposed)
}

func TestBuildAllocatorOptions(t *testing.T) {
	s := newStubSession(t)
	defer s.Dispose(context.Background())
	s.cfg = config.NewDefaultConfig().Browser

	base := s.buildAllocatorOptions()
	// The defaults are carried whole, then overridden.
	assert.Greater(t, len(base), len(chromedp.DefaultExecAllocatorOptions))

	// Config-file arguments each contribute one option.
	s.cfg.Args = []string{"--disable-features=Translate", "mute-audio"}
	withArgs := s.buildAllocatorOptions()
	assert.Equal(t, len(base)+2, len(withArgs))
}

func TestNewSessionRejectsBadConfiguredViewport(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Viewport = config.ViewportConfig{Width: 0, Height: 0}

	_, err := NewSession(context.Background(), zap.NewNop(), cfg)
	assert.Error(t, err)
}
