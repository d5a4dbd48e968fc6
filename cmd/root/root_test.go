package root

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomind/console/internal/fakeserver"
	"github.com/neomind/console/pkg/config"
	"github.com/neomind/console/pkg/version"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NEOMIND_CONFIG_DIR", t.TempDir())
	t.Setenv("NEOMIND_DATA_DIR", t.TempDir())

	var stdout bytes.Buffer
	err := Execute(context.Background(), nil, &stdout, io.Discard, args...)
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "neomind version "+version.Version)
}

func TestDefaultToChat(t *testing.T) {
	t.Parallel()

	rootCmd := NewRootCmd()

	assert.Equal(t, []string{"chat"}, defaultToChat(rootCmd, nil))
	assert.Equal(t, []string{"chat", "--debug"}, defaultToChat(rootCmd, []string{"--debug"}))
	assert.Equal(t, []string{"version"}, defaultToChat(rootCmd, []string{"version"}))
	assert.Equal(t, []string{"--help"}, defaultToChat(rootCmd, []string{"--help"}))
	assert.Equal(t, []string{"chat", "hello there"}, defaultToChat(rootCmd, []string{"hello there"}))
}

func TestSessionsAgainstServer(t *testing.T) {
	ts := httptest.NewServer(fakeserver.New().Handler())
	t.Cleanup(ts.Close)

	out, err := runCommand(t, "sessions", "list", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "List sessions")

	t.Setenv("NEOMIND_CONFIG_DIR", t.TempDir())
	cfg := &config.Config{ServerURL: ts.URL}
	require.NoError(t, cfg.Save())

	var stdout bytes.Buffer
	err = Execute(context.Background(), nil, &stdout, io.Discard, "sessions", "new")
	require.NoError(t, err)
	id := strings.TrimSpace(stdout.String())
	assert.NotEmpty(t, id)

	stdout.Reset()
	err = Execute(context.Background(), nil, &stdout, io.Discard, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), id)

	stdout.Reset()
	err = Execute(context.Background(), nil, &stdout, io.Discard, "sessions", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Deleted "+id)
}

func TestUnknownCommandShowsUsage(t *testing.T) {
	var stderr bytes.Buffer
	t.Setenv("NEOMIND_CONFIG_DIR", t.TempDir())
	t.Setenv("NEOMIND_DATA_DIR", t.TempDir())

	err := Execute(context.Background(), nil, io.Discard, &stderr, "sessions", "frobnicate")
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "frobnicate")
}
