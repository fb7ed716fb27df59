// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karstlabs/vizdiff/internal/observability"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version, strings.TrimSpace(out))
}

func TestCompareRequiresTwoURLs(t *testing.T) {
	_, err := executeCommand(t, "compare", "https://only-one.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestRootRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "compare")
	assert.Contains(t, names, "version")
}

func TestCompareFlagDefaults(t *testing.T) {
	root := NewRootCommand()
	compare, _, err := root.Find([]string{"compare"})
	require.NoError(t, err)

	assert.Equal(t, "networkidle", compare.Flags().Lookup("wait-for").DefValue)
	assert.Equal(t, "true", compare.Flags().Lookup("full-page").DefValue)
	assert.Equal(t, "0.1", compare.Flags().Lookup("threshold").DefValue)
	assert.Equal(t, "true", compare.Flags().Lookup("include-aa").DefValue)
}
