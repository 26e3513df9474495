package config

import "testing"

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("API_TOKEN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("UPSTREAM_PORT", "8443")

	if _, err := Load(); err == nil {
		t.Errorf("Load() error = nil, want an error for missing api_token")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("UPSTREAM_PORT", "8443")

	if _, err := Load(); err == nil {
		t.Errorf("Load() error = nil, want an error for missing database_url")
	}
}

func TestLoadRequiresPositiveUpstreamPort(t *testing.T) {
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("UPSTREAM_PORT", "0")

	if _, err := Load(); err == nil {
		t.Errorf("Load() error = nil, want an error for a non-positive upstream_port")
	}
}

func TestLoadDefaultsAndAmbientKeys(t *testing.T) {
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("UPSTREAM_PORT", "8443")
	t.Setenv("XRAY_CONFIG_PATH", "")
	t.Setenv("PROXY_BACKEND_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogsEnabled != true {
		t.Errorf("LogsEnabled = %v, want true by default", cfg.LogsEnabled)
	}
	if cfg.UpstreamConfig.XrayPath != "/usr/local/etc/xray/config.json" {
		t.Errorf("UpstreamConfig.XrayPath = %q, want the default xray path", cfg.UpstreamConfig.XrayPath)
	}
	if cfg.XrayAPI.Port != 10085 {
		t.Errorf("XrayAPI.Port = %d, want 10085", cfg.XrayAPI.Port)
	}
	if cfg.ProxyBackendAddr != "127.0.0.1:443" {
		t.Errorf("ProxyBackendAddr = %q, want the default backend addr", cfg.ProxyBackendAddr)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("UPSTREAM_PORT", "8443")
	t.Setenv("PROXY_BACKEND_ADDR", "10.0.0.5:1080")
	t.Setenv("LOGS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProxyBackendAddr != "10.0.0.5:1080" {
		t.Errorf("ProxyBackendAddr = %q, want override", cfg.ProxyBackendAddr)
	}
	if cfg.LogsEnabled {
		t.Errorf("LogsEnabled = true, want false override")
	}
	if cfg.UpstreamPort != 8443 {
		t.Errorf("UpstreamPort = %d, want 8443", cfg.UpstreamPort)
	}
}

func TestServerConfigAddr(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: "8080"}
	if got, want := c.Addr(), "0.0.0.0:8080"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

func TestRedisConfigAddr(t *testing.T) {
	c := RedisConfig{Host: "localhost", Port: "6379"}
	if got, want := c.Addr(), "localhost:6379"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
