package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
upstream:
  api_base_url: http://im.local:8080
  ws_url: ws://im.local:8080/ws
typing:
  ttl: 7s
reconnect:
  max_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "http://im.local:8080", cfg.Upstream.APIBaseURL)
	assert.Equal(t, 7*time.Second, cfg.Typing.TTL)
	assert.Equal(t, uint(3), cfg.Reconnect.MaxAttempts)

	// defaults
	assert.Equal(t, 30, cfg.Sync.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Sync.EchoWindow)
	assert.Equal(t, "nexosync:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 5, cfg.Upstream.PlatformId)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
