package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang-smssync-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDefaultsCallerWins(t *testing.T) {
	opts := config.Options{From: "council", Concurrency: 2}.WithDefaults()

	assert.Equal(t, "council", opts.From)
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, "open311-smssync", opts.Transport)
	assert.Equal(t, "smssync", opts.QueueName)
	assert.Empty(t, opts.ReceiveQueue)
}

func TestWithDefaultsIsIdempotent(t *testing.T) {
	once := config.Options{Reply: "thanks"}.WithDefaults()
	assert.Equal(t, once, once.WithDefaults())
}

func TestParseYAML(t *testing.T) {
	opts, err := config.Parse([]byte(`
from: open311
reply: Thanks reporting. We are working on it.
timeout: 2s
concurrency: 4
receiveQueue: smssync:receive
`))
	require.NoError(t, err)
	assert.Equal(t, "Thanks reporting. We are working on it.", opts.Reply)
	assert.Equal(t, 2*time.Second, opts.Timeout)
	assert.Equal(t, 4, opts.Concurrency)
	assert.Equal(t, "smssync:receive", opts.ReceiveQueue)
}

func TestParseYAMLTimeoutMillis(t *testing.T) {
	opts, err := config.Parse([]byte("timeoutMs: 1500\n"))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, opts.Timeout)
}

func TestParseYAMLRejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse([]byte("sekret: x\n"))
	require.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	opts, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Options{}, opts)
}

func TestFromEnvLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smssync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("from: file-sender\nreply: from-file\n"), 0o600))

	t.Setenv("SMSSYNC_CONFIG", path)
	t.Setenv("SMSSYNC_REPLY", "from-env")
	t.Setenv("SMSSYNC_CONCURRENCY", "3")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "file-sender", cfg.SMSSync.From)
	assert.Equal(t, "from-env", cfg.SMSSync.Reply)
	assert.Equal(t, 3, cfg.SMSSync.Concurrency)
	assert.Equal(t, "/smssync", cfg.SyncPath)
}

func TestFromEnvMissingFile(t *testing.T) {
	t.Setenv("SMSSYNC_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := config.FromEnv()
	require.Error(t, err)
}
