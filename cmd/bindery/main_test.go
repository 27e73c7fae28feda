package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindery/bindery/internal/config"
	"github.com/bindery/bindery/internal/downloads"
)

func TestStatusAliases(t *testing.T) {
	aliases, err := statusAliases(map[string]string{"warming": "Queued", "parked": "paused"})
	require.NoError(t, err)
	assert.Equal(t, downloads.StatusQueued, aliases["warming"])
	assert.Equal(t, downloads.StatusPaused, aliases["parked"])

	_, err = statusAliases(map[string]string{"x": "sleeping"})
	assert.Error(t, err)
}

func TestClientSelector(t *testing.T) {
	assert.IsType(t, downloads.FirstEnabledSelector{}, clientSelector(config.SelectionFirst))
	assert.IsType(t, downloads.ProtocolSelector{}, clientSelector(config.SelectionProtocol))
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	cfg := "database:\n  path: " + filepath.Join(dir, "bindery.db") + "\nlogging:\n  level: error\n  format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestCLI_ClientsAndBooks(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, cfg, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")

	out, err = runCLI(t, cfg, "clients", "add", "Dev", "--type", "mock")
	require.NoError(t, err)
	assert.Contains(t, out, "added download client 1 (mock)")

	_, err = runCLI(t, cfg, "clients", "add", "Bad", "--type", "deluge")
	assert.Error(t, err)

	out, err = runCLI(t, cfg, "clients", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Dev")

	out, err = runCLI(t, cfg, "clients", "list", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Dev")
	assert.Contains(t, out, "type: mock")
	assert.NotContains(t, out, "password")

	out, err = runCLI(t, cfg, "clients", "test", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "is healthy")

	_, err = runCLI(t, cfg, "clients", "test", "abc")
	assert.Error(t, err)

	out, err = runCLI(t, cfg, "books", "add", "Dune", "--author", "Frank Herbert")
	require.NoError(t, err)
	assert.Contains(t, out, "tracking book 1: Dune")
}
