// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
)

// knownWeakSecrets contains default/example tokens that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-a-long-admin-token!",
	"REPLACE_WITH_YOUR_OWN_ADMIN_TOKEN",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"HTMLPAGE_DB_PATH" envDefault:"./data/htmlpage.db"`
	ServerHost string `env:"HTMLPAGE_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"HTMLPAGE_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"HTMLPAGE_ENV" envDefault:"development"`
	LogLevel   string `env:"HTMLPAGE_LOG_LEVEL" envDefault:"info"`
	SiteURL    string `env:"HTMLPAGE_SITE_URL" envDefault:"http://localhost:8080"`

	// Admin API access. The token may be given in clear or as an argon2id hash.
	AdminToken      string   `env:"HTMLPAGE_ADMIN_TOKEN,required"`
	AdminWorkgroups []string `env:"HTMLPAGE_ADMIN_WORKGROUPS" envDefault:"all" envSeparator:","`

	// When false every page is visible regardless of its role.
	AuthenticationEnabled bool `env:"HTMLPAGE_AUTHENTICATION_ENABLED" envDefault:"true"`

	// Visitor roles set by a trusted upstream. Both are needed to enable it.
	RolesHeader string `env:"HTMLPAGE_ROLES_HEADER"` // e.g. X-Htmlpage-Roles
	RolesSecret string `env:"HTMLPAGE_ROLES_SECRET"`

	// Cache invalidation bus
	RedisURL     string `env:"HTMLPAGE_REDIS_URL"` // Optional; enables cross-node invalidation
	RedisChannel string `env:"HTMLPAGE_REDIS_CHANNEL" envDefault:"htmlpage:invalidate"`

	// Search indexing
	IndexerEnabled  bool   `env:"HTMLPAGE_INDEXER_ENABLED" envDefault:"true"`
	IndexerName     string `env:"HTMLPAGE_INDEXER_NAME" envDefault:"HtmlPageIndexer"`
	IndexSchedule   string `env:"HTMLPAGE_INDEX_SCHEDULE" envDefault:"@every 1m"`
	ReindexSchedule string `env:"HTMLPAGE_REINDEX_SCHEDULE" envDefault:"0 3 * * *"`

	// Public rate limiting
	RateLimitRPS        float64 `env:"HTMLPAGE_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst      int     `env:"HTMLPAGE_RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitMaxClients int     `env:"HTMLPAGE_RATE_LIMIT_MAX_CLIENTS" envDefault:"10000"`

	// Event log retention
	EventRetention time.Duration `env:"HTMLPAGE_EVENT_RETENTION" envDefault:"720h"`

	// Seeding configuration
	DoSeed bool `env:"HTMLPAGE_DO_SEED" envDefault:"false"` // Insert sample pages into an empty database
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedis returns true if the Redis invalidation bus is configured.
func (c Config) UseRedis() bool {
	return c.RedisURL != ""
}

// SyncRoles returns true if a trusted upstream may set visitor roles.
func (c Config) SyncRoles() bool {
	return c.RolesHeader != ""
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MinAdminTokenLength is the minimum length of a clear-text admin token.
const MinAdminTokenLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	if err := validateSecret("HTMLPAGE_ADMIN_TOKEN", cfg.AdminToken); err != nil {
		return nil, err
	}

	if cfg.RolesHeader != "" {
		if cfg.RolesSecret == "" {
			return nil, fmt.Errorf("HTMLPAGE_ROLES_SECRET is required when HTMLPAGE_ROLES_HEADER is set")
		}
		if err := validateSecret("HTMLPAGE_ROLES_SECRET", cfg.RolesSecret); err != nil {
			return nil, err
		}
	}

	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("HTMLPAGE_RATE_LIMIT_RPS and HTMLPAGE_RATE_LIMIT_BURST must be positive")
	}
	if cfg.RateLimitMaxClients <= 0 {
		return nil, fmt.Errorf("HTMLPAGE_RATE_LIMIT_MAX_CLIENTS must be positive, got %d", cfg.RateLimitMaxClients)
	}

	return cfg, nil
}

// validateSecret checks a clear-text secret named by the variable name.
// Argon2id hashes are accepted as they are.
func validateSecret(name, token string) error {
	if auth.IsHashed(token) {
		return nil
	}

	if len(token) < MinAdminTokenLength {
		return fmt.Errorf("%s must be at least %d bytes long, got %d bytes; "+
			"generate a secure token with: openssl rand -base64 32",
			name, MinAdminTokenLength, len(token))
	}

	for _, weak := range knownWeakSecrets {
		if token == weak {
			return fmt.Errorf("%s is a known default value and must not be used; "+
				"generate a secure token with: openssl rand -base64 32", name)
		}
	}

	if !hasMinimumEntropy(token) {
		slog.Warn(name+" has low character diversity; "+
			"consider generating a random token with: openssl rand -base64 32",
			"category", "config")
	}
	return nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
