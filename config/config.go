// Package config provides application configuration management.
// Configuration is loaded from environment variables with .env file support,
// the key-value document of spec.md §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized key from spec.md §6 plus the ambient fields
// this process needs to run (listen address, Redis, Postgres pool sizing)
// that the teacher's own config.go always carries alongside the domain keys.
type Config struct {
	// Required per spec.md §6.
	Token        string // api_token
	DatabaseURL  string // database_url
	UpstreamPort int    // upstream_port

	// Optional per spec.md §6.
	LogsEnabled  bool   // logs_enabled, default true
	TunnelAPIKey string // tunnel_api_key
	TunnelDomain string // tunnel_domain

	// Ambient process settings, not named keys in spec.md's table but
	// required for this process to bind a listener and reach Redis,
	// following config/config.go's ServerConfig/RedisConfig split.
	Server ServerConfig
	Redis  RedisConfig

	// Tunables for components whose periods spec.md leaves configurable.
	// ReconcilerBatch and ReconcilerRetries are loaded but not passed to the
	// reconciler, which uses its own BatchSize and MaxRetries constants.
	ObserverTick      time.Duration
	ReconcilerBatch   int
	ReconcilerRetries int

	// Upstream config document locations (C3) and the xray telemetry API
	// (C7 step 3) — not named keys in spec.md's table, but every real
	// deployment of this control plane needs to know where they live.
	UpstreamConfig UpstreamConfigPaths
	XrayAPI        XrayAPIConfig

	// ProxyBackendAddr is where the Proxy Session Bridges (C9) dial once a
	// connection is authorized — the actual local v2ray/xray inbound.
	// upstream_port (§6) names the port C8 listens on for inbound client
	// connections; this is the separate address bridges forward to.
	ProxyBackendAddr string
}

// UpstreamConfigPaths locates the two upstream documents the Writer (C3)
// rewrites.
type UpstreamConfigPaths struct {
	XrayPath  string
	V2RayPath string
}

// XrayAPIConfig locates the xray stats-query HTTP API the Observer (C7)
// polls for per-user byte counters.
type XrayAPIConfig struct {
	Host string
	Port int
}

// ServerConfig holds the minimal HTTP listener settings (C10 WS upgrades,
// /healthz, /metrics — see SPEC_FULL.md's AMBIENT STACK).
type ServerConfig struct {
	Host string
	Port string
}

// Addr returns the server address in host:port format.
func (c ServerConfig) Addr() string { return c.Host + ":" + c.Port }

// RedisConfig holds the Presence Store (C2) connection settings.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string { return c.Host + ":" + c.Port }

// Load reads configuration from environment variables, attempting to load
// a .env file first (ignoring its absence), exactly as the teacher's
// config.Load does. Missing required keys are fatal (ConfigInvalid, §7).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Token:        os.Getenv("API_TOKEN"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		UpstreamPort: getEnvAsInt("UPSTREAM_PORT", 0),
		LogsEnabled:  getEnvAsBool("LOGS_ENABLED", true),
		TunnelAPIKey: os.Getenv("TUNNEL_API_KEY"),
		TunnelDomain: os.Getenv("TUNNEL_DOMAIN"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		ObserverTick:      time.Duration(getEnvAsInt("OBSERVER_TICK_MS", 750)) * time.Millisecond,
		ReconcilerBatch:   getEnvAsInt("RECONCILER_BATCH_SIZE", 50),
		ReconcilerRetries: getEnvAsInt("RECONCILER_MAX_RETRIES", 3),
		UpstreamConfig: UpstreamConfigPaths{
			XrayPath:  getEnv("XRAY_CONFIG_PATH", "/usr/local/etc/xray/config.json"),
			V2RayPath: getEnv("V2RAY_CONFIG_PATH", "/etc/v2ray/config.json"),
		},
		XrayAPI: XrayAPIConfig{
			Host: getEnv("XRAY_API_HOST", "127.0.0.1"),
			Port: getEnvAsInt("XRAY_API_PORT", 10085),
		},
		ProxyBackendAddr: getEnv("PROXY_BACKEND_ADDR", "127.0.0.1:443"),
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("missing required config key: api_token")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required config key: database_url")
	}
	if cfg.UpstreamPort <= 0 {
		return nil, fmt.Errorf("missing or invalid required config key: upstream_port")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
