// File: internal/capture/stabilizer_test.go
package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMaskCSS(t *testing.T) {
	tests := []struct {
		name      string
		selectors []string
		want      string
	}{
		{
			name:      "no selectors",
			selectors: nil,
			want:      "",
		},
		{
			name:      "single selector",
			selectors: []string{".ad-banner"},
			want:      ".ad-banner { visibility: hidden !important; opacity: 0 !important; }",
		},
		{
			name:      "multiple selectors joined",
			selectors: []string{"#cookie", ".promo"},
			want:      "#cookie, .promo { visibility: hidden !important; opacity: 0 !important; }",
		},
		{
			name:      "blank entries dropped",
			selectors: []string{"", "  ", ".keep"},
			want:      ".keep { visibility: hidden !important; opacity: 0 !important; }",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildMaskCSS(tt.selectors))
		})
	}
}

func TestParseWaitStrategy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    WaitStrategy
		wantErr bool
	}{
		{name: "empty defaults to network idle", input: "", want: WaitStrategy{NetworkIdle: true}},
		{name: "explicit network idle", input: "networkidle", want: WaitStrategy{NetworkIdle: true}},
		{name: "css selector", input: "css:#main .hero", want: WaitStrategy{Selector: "#main .hero"}},
		{name: "css selector trimmed", input: "css:  .ready  ", want: WaitStrategy{Selector: ".ready"}},
		{name: "empty css selector", input: "css:", wantErr: true},
		{name: "unknown strategy", input: "domready", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWaitStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitStrategyString(t *testing.T) {
	assert.Equal(t, "networkidle", WaitStrategy{NetworkIdle: true}.String())
	assert.Equal(t, "css:.ready", WaitStrategy{Selector: ".ready"}.String())
}
