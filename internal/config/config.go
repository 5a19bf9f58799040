// Package config resolves all runtime configuration from the process
// environment. Required values are validated before any network call so
// misconfigured cron jobs fail fast with a clear message.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/njt/graph365/internal/tokencache"
)

// DefaultScopes is the scope set requested when GRAPH365_SCOPES is unset.
// offline_access is required so the provider issues a refresh token;
// openid and profile make the provider return an id_token the account
// record is built from.
var DefaultScopes = []string{
	"User.Read",
	"Calendars.Read",
	"Mail.Read",
	"Files.Read",
	"openid",
	"profile",
	"offline_access",
}

// Config holds all environment-based configuration for graph365.
type Config struct {
	// Azure AD app registration. Tenant and client id are required for
	// every command; the client secret is required for silent refresh
	// (confidential client) but not for the device-code bootstrap.
	TenantID     string `env:"GRAPH365_TENANT_ID"`
	ClientID     string `env:"GRAPH365_CLIENT_ID"`
	ClientSecret string `env:"GRAPH365_CLIENT_SECRET"`

	// CachePath, when set, becomes the primary credential cache location
	// ahead of the default candidates.
	CachePath string `env:"GRAPH365_CACHE_PATH"`

	// Scopes overrides the default scope set.
	Scopes []string `env:"GRAPH365_SCOPES" envSeparator:" "`
}

// Load reads .env (best-effort), parses the environment and validates
// required values.
func Load() (*Config, error) {
	warnInsecureEnvFile()
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.TenantID == "" {
		return nil, fmt.Errorf("GRAPH365_TENANT_ID is not set")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("GRAPH365_CLIENT_ID is not set")
	}
	if _, err := uuid.Parse(cfg.ClientID); err != nil {
		return nil, fmt.Errorf("GRAPH365_CLIENT_ID is not a valid client id: %w", err)
	}
	// Tenant may be a UUID or a verified domain; only warn on neither.
	if _, err := uuid.Parse(cfg.TenantID); err != nil {
		slog.Debug("tenant id is not a UUID, assuming tenant domain", "tenant", cfg.TenantID)
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	} else {
		cfg.Scopes = withReservedScopes(cfg.Scopes)
	}

	return cfg, nil
}

// withReservedScopes appends the OpenID scopes a GRAPH365_SCOPES override
// may have dropped. offline_access is load-bearing: without it the
// provider issues no refresh token and every unattended run after the
// first token expiry fails.
func withReservedScopes(scopes []string) []string {
	seen := map[string]bool{}
	for _, s := range scopes {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range []string{"openid", "profile", "offline_access"} {
		if !seen[s] {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// Endpoint returns the Azure AD v2.0 endpoints for the configured tenant.
func (c *Config) Endpoint() oauth2.Endpoint {
	return microsoft.AzureADEndpoint(c.TenantID)
}

// CacheCandidates returns the ordered credential cache locations.
func (c *Config) CacheCandidates() []string {
	return tokencache.DefaultCandidates(c.CachePath)
}

// warnInsecureEnvFile warns when a .env file is group or world readable;
// it typically holds the client secret.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		slog.Warn("insecure .env permissions, recommend 0600", "mode", fmt.Sprintf("%04o", mode))
	}
}
