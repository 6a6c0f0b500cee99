package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/config"
)

func TestLoadFallsBackToDatabaseURL(t *testing.T) {
	t.Setenv("EXO_POSTGRES_URL", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("EXO_SYSTEM_PATH", "system.bin")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", cfg.PostgresURL)
	assert.Equal(t, 9876, cfg.ServerPort)
	assert.Equal(t, 5, cfg.MaxSelectionDepth)
}

func TestLoadRejectsVerifyFullSSLMode(t *testing.T) {
	t.Setenv("EXO_POSTGRES_URL", "postgres://localhost/app?sslmode=verify-full")
	t.Setenv("EXO_SYSTEM_PATH", "system.bin")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsBothJWTSecretAndOIDCURL(t *testing.T) {
	t.Setenv("EXO_POSTGRES_URL", "postgres://localhost/app")
	t.Setenv("EXO_JWT_SECRET", "secret")
	t.Setenv("EXO_OIDC_URL", "https://issuer.example.com")
	t.Setenv("EXO_SYSTEM_PATH", "system.bin")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRequiresSystemPath(t *testing.T) {
	t.Setenv("EXO_POSTGRES_URL", "postgres://localhost/app")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestCORSOriginsWildcard(t *testing.T) {
	cfg := &config.Config{CORSDomains: "*"}
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins())
}

func TestCORSOriginsSplitsAndTrims(t *testing.T) {
	cfg := &config.Config{CORSDomains: "a.example.com, b.example.com"}
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, cfg.CORSOrigins())
}
