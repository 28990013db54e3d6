package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("AMO_SUBDOMAIN", "")
	t.Setenv("AMO_REDIRECT_URI", "")
	t.Setenv("HTTP_TIMEOUT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.App.Port)
	assert.Equal(t, "http://localhost:3001/api/amo/callback", cfg.Amo.RedirectURI)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "env", cfg.Amo.TokenStore)
	assert.False(t, cfg.Amo.Configured())
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_AmoURLsFollowSubdomain(t *testing.T) {
	t.Setenv("AMO_SUBDOMAIN", "acme")
	t.Setenv("AMO_BASE_URL", "")
	t.Setenv("AMO_TOKEN_URL", "")
	t.Setenv("AMO_CLIENT_ID", "id")
	t.Setenv("AMO_CLIENT_SECRET", "secret")
	t.Setenv("AMO_PIPELINE_ID", "42")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://acme.amocrm.ru/api/v4", cfg.Amo.BaseURL)
	assert.Equal(t, "https://acme.amocrm.ru/oauth2/access_token", cfg.Amo.TokenURL)
	assert.Equal(t, int64(42), cfg.Amo.PipelineID)
	assert.True(t, cfg.Amo.Configured())
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_TIMEOUT", "45s")
	assert.Equal(t, 45*time.Second, getEnvDuration("X_TIMEOUT", time.Second))

	t.Setenv("X_TIMEOUT", "1500")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("X_TIMEOUT", time.Second))

	t.Setenv("X_TIMEOUT", "nope")
	assert.Equal(t, time.Second, getEnvDuration("X_TIMEOUT", time.Second))
}
