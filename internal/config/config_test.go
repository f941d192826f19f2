package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndSecrets(t *testing.T) {
	t.Setenv("LIFEDROP_JWT_SECRET", "s3cret")
	t.Setenv("LIFEDROP_DB_PASSWORD", "pw")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Equal(t, 5*time.Second, cfg.Notification.ChannelTimeout)
	assert.Equal(t, time.Minute, cfg.Worker.RequestExpiryInterval)
	assert.Contains(t, cfg.Database.DSN(), "dbname=lifedrop")
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yml := `
server:
  port: 9090
notification:
  channel_timeout: 2s
  email:
    enabled: true
    host: smtp.example.org
jwt:
  secret: from-file
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))
	t.Setenv("LIFEDROP_SERVER_PORT", "7070")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Notification.ChannelTimeout)
	assert.True(t, cfg.Notification.Email.Enabled)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "jwt.secret is required")
}
