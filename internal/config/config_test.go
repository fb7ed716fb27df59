// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Defaults resolved through viper must be structurally identical to the
// programmatic defaults; drift between the two paths is a config bug.
func TestViperDefaultsMatchProgrammaticDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	fromViper, err := NewConfigFromViper(v)
	require.NoError(t, err)

	if diff := cmp.Diff(NewDefaultConfig(), fromViper); diff != "" {
		t.Errorf("config defaults diverge (-programmatic +viper):\n%s", diff)
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "vizdiff", cfg.Logger.ServiceName)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.Viewport.Width)
	assert.Equal(t, 1080, cfg.Browser.Viewport.Height)
	assert.Equal(t, "en-US", cfg.Browser.Locale)
	assert.Equal(t, "UTC", cfg.Browser.Timezone)

	assert.Equal(t, 30*time.Second, cfg.Capture.NavigationTimeout)
	assert.True(t, cfg.Capture.FullPage)

	assert.Equal(t, 3, cfg.Scroll.NoChangeThreshold)
	assert.Equal(t, 50, cfg.Scroll.MaxSteps)
	assert.Equal(t, 60000, cfg.Scroll.HeightCeilingPx)

	assert.InDelta(t, 0.1, cfg.Diff.Threshold, 1e-9)
	assert.True(t, cfg.Diff.IncludeAA)
	assert.Equal(t, 10000, cfg.Diff.MaxWidth)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("browser.headless", false)
	v.Set("scroll.max_steps", 10)
	v.Set("capture.navigation_timeout", "5s")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 10, cfg.Scroll.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.Capture.NavigationTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero viewport width", func(c *Config) { c.Browser.Viewport.Width = 0 }},
		{"negative viewport height", func(c *Config) { c.Browser.Viewport.Height = -1 }},
		{"zero navigation timeout", func(c *Config) { c.Capture.NavigationTimeout = 0 }},
		{"step fraction above one", func(c *Config) { c.Scroll.StepFraction = 1.5 }},
		{"zero min step", func(c *Config) { c.Scroll.MinStepPx = 0 }},
		{"zero no-change threshold", func(c *Config) { c.Scroll.NoChangeThreshold = 0 }},
		{"zero max steps", func(c *Config) { c.Scroll.MaxSteps = 0 }},
		{"zero height ceiling", func(c *Config) { c.Scroll.HeightCeilingPx = 0 }},
		{"threshold above one", func(c *Config) { c.Diff.Threshold = 1.01 }},
		{"negative threshold", func(c *Config) { c.Diff.Threshold = -0.1 }},
		{"zero diff bound", func(c *Config) { c.Diff.MaxWidth = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
