package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SCANPOS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SCANPOS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis connection URL for the lookup cache (SCANPOS_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SCANPOS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Lookup       LookupConfig
	Session      SessionConfig
	Finalizer    FinalizerConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// LookupConfig tunes the scan lookup cache.
type LookupConfig struct {
	TTL time.Duration `default:"5m" usage:"Lookup cache entry lifetime" flag:"lookup-ttl"`
}

// SessionConfig tunes the in-memory POS cart sessions.
type SessionConfig struct {
	TTL time.Duration `default:"4h" usage:"Idle POS session lifetime" flag:"session-ttl"`
}

// FinalizerConfig tunes the async order status worker.
type FinalizerConfig struct {
	PollInterval time.Duration `default:"15s" usage:"Finalize job poll interval" flag:"finalizer-poll"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SCANPOS",
		Files:     []string{"config.yaml", "/etc/scanpos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SCANPOS_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's SCANPOS_-
// prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
