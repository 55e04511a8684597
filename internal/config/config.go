// Package config builds the process-wide configuration from defaults,
// an optional env file, and CONDUIT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the single process-wide configuration record.
type Config struct {
	Host           string
	Port           int
	Path           string
	Key            string
	AllowedOrigins []string
	RequireSecure  bool
	AllowDiscovery bool

	ConcurrentLimit int
	AliveTimeout    time.Duration
	ExpireTimeout   time.Duration
	CleanupOutMsgs  time.Duration
	MaxMessageBytes int

	Relay     RelayConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Log       LogConfig
}

type RelayConfig struct {
	Enabled        bool
	MaxMessageSize int
}

type RateLimitConfig struct {
	Enabled    bool
	MaxTokens  int
	RefillRate float64
}

type AdminConfig struct {
	Enabled    bool
	Path       string
	APIVersion string
	Auth       AdminAuthConfig
	Metrics    AdminMetricsConfig
	Audit      AdminAuditConfig
	WS         AdminWSConfig
}

type AdminAuthConfig struct {
	Methods        []string // subset of "apiKey", "jwt", "basic"
	APIKey         string
	JWTSecret      string
	JWTExpiresIn   time.Duration
	BasicUser      string
	BasicPassword  string // bcrypt hash, or plain as a last resort
	SessionTimeout time.Duration
}

type AdminMetricsConfig struct {
	Retention        time.Duration
	SnapshotInterval time.Duration
	MaxSnapshots     int
}

type AdminAuditConfig struct {
	Enabled    bool
	MaxEntries int
}

type AdminWSConfig struct {
	Enabled           bool
	Path              string
	HeartbeatInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            9000,
		Path:            "/",
		Key:             "conduit",
		AllowedOrigins:  nil,
		ConcurrentLimit: 5000,
		AliveTimeout:    60 * time.Second,
		ExpireTimeout:   5 * time.Minute,
		CleanupOutMsgs:  time.Minute,
		MaxMessageBytes: 1 << 20,
		Relay: RelayConfig{
			Enabled:        false,
			MaxMessageSize: 64 * 1024,
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			MaxTokens:  100,
			RefillRate: 50,
		},
		Admin: AdminConfig{
			Enabled:    true,
			Path:       "/admin",
			APIVersion: "v1",
			Auth: AdminAuthConfig{
				Methods:        []string{"apiKey"},
				JWTExpiresIn:   24 * time.Hour,
				SessionTimeout: time.Hour,
			},
			Metrics: AdminMetricsConfig{
				Retention:        time.Hour,
				SnapshotInterval: 10 * time.Second,
				MaxSnapshots:     360,
			},
			Audit: AdminAuditConfig{
				Enabled:    true,
				MaxEntries: 1000,
			},
			WS: AdminWSConfig{
				Enabled:           true,
				Path:              "/ws",
				HeartbeatInterval: 30 * time.Second,
			},
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
}

// Load builds the configuration: defaults, then the env file (when it
// exists), then environment variables.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
			log.Debug().Str("file", envFile).Msg("Env file not found, skipping")
		}
	}

	cfg := Defaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("CONDUIT_HOST", &c.Host)
	envInt("CONDUIT_PORT", &c.Port)
	envString("CONDUIT_PATH", &c.Path)
	envString("CONDUIT_KEY", &c.Key)
	envStrings("CONDUIT_ALLOWED_ORIGINS", &c.AllowedOrigins)
	envBool("CONDUIT_REQUIRE_SECURE", &c.RequireSecure)
	envBool("CONDUIT_ALLOW_DISCOVERY", &c.AllowDiscovery)
	envInt("CONDUIT_CONCURRENT_LIMIT", &c.ConcurrentLimit)
	envDurationMs("CONDUIT_ALIVE_TIMEOUT_MS", &c.AliveTimeout)
	envDurationMs("CONDUIT_EXPIRE_TIMEOUT_MS", &c.ExpireTimeout)
	envDurationMs("CONDUIT_CLEANUP_OUT_MSGS_MS", &c.CleanupOutMsgs)
	envInt("CONDUIT_MAX_MESSAGE_BYTES", &c.MaxMessageBytes)

	envBool("CONDUIT_RELAY_ENABLED", &c.Relay.Enabled)
	envInt("CONDUIT_RELAY_MAX_MESSAGE_SIZE", &c.Relay.MaxMessageSize)

	envBool("CONDUIT_RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	envInt("CONDUIT_RATE_LIMIT_MAX_TOKENS", &c.RateLimit.MaxTokens)
	envFloat("CONDUIT_RATE_LIMIT_REFILL_RATE", &c.RateLimit.RefillRate)

	envBool("CONDUIT_ADMIN_ENABLED", &c.Admin.Enabled)
	envString("CONDUIT_ADMIN_PATH", &c.Admin.Path)
	envString("CONDUIT_ADMIN_API_VERSION", &c.Admin.APIVersion)
	envStrings("CONDUIT_ADMIN_AUTH_METHODS", &c.Admin.Auth.Methods)
	envString("CONDUIT_ADMIN_API_KEY", &c.Admin.Auth.APIKey)
	envString("CONDUIT_ADMIN_JWT_SECRET", &c.Admin.Auth.JWTSecret)
	envDurationMs("CONDUIT_ADMIN_JWT_EXPIRES_MS", &c.Admin.Auth.JWTExpiresIn)
	envString("CONDUIT_ADMIN_BASIC_USER", &c.Admin.Auth.BasicUser)
	envString("CONDUIT_ADMIN_BASIC_PASSWORD", &c.Admin.Auth.BasicPassword)
	envDurationMs("CONDUIT_ADMIN_SESSION_TIMEOUT_MS", &c.Admin.Auth.SessionTimeout)
	envDurationMs("CONDUIT_ADMIN_METRICS_RETENTION_MS", &c.Admin.Metrics.Retention)
	envDurationMs("CONDUIT_ADMIN_METRICS_SNAPSHOT_INTERVAL_MS", &c.Admin.Metrics.SnapshotInterval)
	envInt("CONDUIT_ADMIN_METRICS_MAX_SNAPSHOTS", &c.Admin.Metrics.MaxSnapshots)
	envBool("CONDUIT_ADMIN_AUDIT_ENABLED", &c.Admin.Audit.Enabled)
	envInt("CONDUIT_ADMIN_AUDIT_MAX_ENTRIES", &c.Admin.Audit.MaxEntries)
	envBool("CONDUIT_ADMIN_WS_ENABLED", &c.Admin.WS.Enabled)
	envString("CONDUIT_ADMIN_WS_PATH", &c.Admin.WS.Path)
	envDurationMs("CONDUIT_ADMIN_WS_HEARTBEAT_MS", &c.Admin.WS.HeartbeatInterval)

	envString("CONDUIT_LOG_LEVEL", &c.Log.Level)
	envString("CONDUIT_LOG_FORMAT", &c.Log.Format)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with /: %q", c.Path)
	}
	if c.Key == "" {
		return fmt.Errorf("client key must not be empty")
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxTokens < 1 {
		return fmt.Errorf("rate limit maxTokens must be >= 1")
	}
	if c.Admin.Enabled {
		for _, m := range c.Admin.Auth.Methods {
			switch m {
			case "apiKey", "jwt", "basic":
			default:
				return fmt.Errorf("unknown admin auth method %q", m)
			}
		}
		if !strings.HasPrefix(c.Admin.Path, "/") {
			return fmt.Errorf("admin path must start with /: %q", c.Admin.Path)
		}
	}
	return nil
}

// BasePath returns the admin route prefix, e.g. "/admin/api/v1".
func (c *Config) AdminBasePath() string {
	return strings.TrimSuffix(c.Admin.Path, "/") + "/api/" + c.Admin.APIVersion
}

// Sanitized returns the non-sensitive configuration subset served by
// GET /config. Secrets never appear here.
func (c *Config) Sanitized() map[string]any {
	return map[string]any{
		"host":            c.Host,
		"port":            c.Port,
		"path":            c.Path,
		"allowedOrigins":  c.AllowedOrigins,
		"requireSecure":   c.RequireSecure,
		"allowDiscovery":  c.AllowDiscovery,
		"concurrentLimit": c.ConcurrentLimit,
		"aliveTimeout":    c.AliveTimeout.Milliseconds(),
		"expireTimeout":   c.ExpireTimeout.Milliseconds(),
		"cleanupOutMsgs":  c.CleanupOutMsgs.Milliseconds(),
		"relay": map[string]any{
			"enabled":        c.Relay.Enabled,
			"maxMessageSize": c.Relay.MaxMessageSize,
		},
		"rateLimit": map[string]any{
			"enabled":    c.RateLimit.Enabled,
			"maxTokens":  c.RateLimit.MaxTokens,
			"refillRate": c.RateLimit.RefillRate,
		},
		"admin": map[string]any{
			"path":        c.Admin.Path,
			"apiVersion":  c.Admin.APIVersion,
			"authMethods": c.Admin.Auth.Methods,
			"metrics": map[string]any{
				"retentionMs":        c.Admin.Metrics.Retention.Milliseconds(),
				"snapshotIntervalMs": c.Admin.Metrics.SnapshotInterval.Milliseconds(),
				"maxSnapshots":       c.Admin.Metrics.MaxSnapshots,
			},
			"audit": map[string]any{
				"enabled":    c.Admin.Audit.Enabled,
				"maxEntries": c.Admin.Audit.MaxEntries,
			},
		},
	}
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envStrings(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Warn().Str("var", key).Str("value", v).Msg("Ignoring non-integer env override")
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			log.Warn().Str("var", key).Str("value", v).Msg("Ignoring non-numeric env override")
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		} else {
			log.Warn().Str("var", key).Str("value", v).Msg("Ignoring non-boolean env override")
		}
	}
}

func envDurationMs(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Millisecond
		} else {
			log.Warn().Str("var", key).Str("value", v).Msg("Ignoring invalid millisecond env override")
		}
	}
}
