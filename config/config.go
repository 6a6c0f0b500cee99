// Package config parses the environment variables spec.md §6 defines into
// a typed, read-only Config struct, the way taibuivan-yomira's own
// internal/platform/config package does for its server: one env.Parse
// call, no scattered os.Getenv reads, fail fast on a missing required
// value.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration of one server process.
type Config struct {
	// PostgresURL is EXO_POSTGRES_URL, falling back to DATABASE_URL when
	// unset (Load resolves this after parsing; see resolveDatabaseURL).
	PostgresURL string `env:"EXO_POSTGRES_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	ServerPort int `env:"EXO_SERVER_PORT" envDefault:"9876"`

	Introspection bool `env:"EXO_INTROSPECTION" envDefault:"false"`

	JWTSecret string `env:"EXO_JWT_SECRET"`
	OIDCURL   string `env:"EXO_OIDC_URL"`

	MaxSelectionDepth int `env:"EXO_MAX_SELECTION_DEPTH" envDefault:"5"`
	// IntrospectionMaxDepth is not independently configurable in spec.md
	// §6's table; it is fixed at the value spec.md §4.8 names (15). env.Parse
	// skips an env:"-" field entirely, so Load assigns it.
	IntrospectionMaxDepth int `env:"-"`

	CORSDomains string `env:"EXO_CORS_DOMAINS" envDefault:""`

	// SystemPath is the compiled SerializableSystem blob (package
	// subsystem) this process loads at startup.
	SystemPath string `env:"EXO_SYSTEM_PATH,required"`

	// Debug makes package server panic on a field error of package
	// exoquery's KindInternal (see runOperation in server/graphql.go);
	// with Debug off such an error is reported with its sanitized
	// message like any other field error.
	Debug bool `env:"EXO_DEBUG" envDefault:"false"`
}

// Load parses the process environment into a Config, resolving the
// EXO_POSTGRES_URL/DATABASE_URL fallback and the sslmode=verify-full
// rejection (see DESIGN.md's Open Question decision: the original driver
// silently downgrades this to require; we fail loudly instead).
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	cfg.IntrospectionMaxDepth = 15

	if err := resolveDatabaseURL(cfg); err != nil {
		return nil, err
	}
	if err := rejectUnsupportedSSLMode(cfg.PostgresURL); err != nil {
		return nil, err
	}
	if cfg.JWTSecret != "" && cfg.OIDCURL != "" {
		return nil, fmt.Errorf("config: EXO_JWT_SECRET and EXO_OIDC_URL are mutually exclusive")
	}

	return cfg, nil
}

func resolveDatabaseURL(cfg *Config) error {
	if cfg.PostgresURL != "" {
		return nil
	}
	if cfg.DatabaseURL != "" {
		cfg.PostgresURL = cfg.DatabaseURL
		return nil
	}
	return fmt.Errorf("config: one of EXO_POSTGRES_URL or DATABASE_URL is required")
}

// rejectUnsupportedSSLMode fails startup when sslmode=verify-full is
// requested: the original driver silently downgrades it to require, which
// this implementation treats as a security posture regression worth
// refusing to start over, rather than silently weakening.
func rejectUnsupportedSSLMode(url string) error {
	if strings.Contains(url, "sslmode=verify-full") {
		return fmt.Errorf("config: sslmode=verify-full is not supported by the configured driver; use sslmode=verify-ca or provide sslrootcert with a mode this driver can fully verify")
	}
	return nil
}

// CORSOrigins splits EXO_CORS_DOMAINS into a trimmed list. It returns nil
// when the variable is empty and []string{"*"} for the literal wildcard.
func (c *Config) CORSOrigins() []string {
	if c.CORSDomains == "" {
		return nil
	}
	if c.CORSDomains == "*" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSDomains, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
