package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	ciDir := filepath.Join(dir, ".code-indexer")
	require.NoError(t, os.MkdirAll(ciDir, 0o755))
	path := filepath.Join(ciDir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsOnMissingSections(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Daemon.Enabled)
	assert.Equal(t, 30, cfg.Daemon.TTLMinutes)
	assert.Equal(t, []int{100, 500, 1000, 2000}, cfg.Daemon.RetryDelaysMs)
}

func TestLoadRejectsOutOfRangeTTL(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"daemon": {"ttl_minutes": 0}}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadTolerantOfUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"daemon": {"enabled": false}, "legacy_transport": "http"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Daemon.Enabled)
	assert.Equal(t, "http", cfg.Unknown["legacy_transport"])
}

func TestSocketPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".code-indexer", "daemon.sock"), cfg.SocketPath())
}

func TestFindWalksUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{}`)

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".code-indexer", "config.json"), found)
}

func TestFindReturnsEmptyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	found, err := Find(dir)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.Daemon.TTLMinutes = 15
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, reloaded.Daemon.TTLMinutes)
}
