package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feed.Endpoints) != 9 {
		t.Errorf("expected 9 feed endpoints, got %d", len(cfg.Sources.Feed.Endpoints))
	}
	if cfg.Sources.Feed.Endpoints[0] != "https://www.timesofisrael.com/feed" {
		t.Errorf("unexpected first endpoint %q", cfg.Sources.Feed.Endpoints[0])
	}
	if len(cfg.Sources.Page.Endpoints) == 0 {
		t.Error("expected page endpoints to be populated")
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxDelay != 8*time.Second {
		t.Errorf("expected 8s max delay, got %s", cfg.Fetch.MaxDelay)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Store.Driver)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
fetch:
  timeout: 5s
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Sources.Extract.APIKeyEnv != "DIFFBOT_TOKEN" {
		t.Errorf("expected default api_key_env, got %q", cfg.Sources.Extract.APIKeyEnv)
	}
	if cfg.Sources.Page.MaxItems != 6 {
		t.Errorf("expected default page max_items 6, got %d", cfg.Sources.Page.MaxItems)
	}
}

func TestParseRejectsPostgresWithoutDSN(t *testing.T) {
	_, err := parse([]byte("store:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

func TestParseNormalizesDriver(t *testing.T) {
	cfg, err := parse([]byte("store:\n  driver: \" Postgres \"\n  dsn: postgres://localhost/news\n"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected driver normalized to postgres, got %q", cfg.Store.Driver)
	}
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	_, err := parse([]byte("store:\n  driver: mongo\n"))
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feed.Endpoints) == 0 {
		t.Error("expected feed endpoints to be populated from file")
	}
}

func TestExtractAPIKey(t *testing.T) {
	cfg := &Config{Sources: Sources{Extract: ExtractSource{APIKeyEnv: "NEWSBRIDGE_TEST_TOKEN"}}}

	t.Setenv("NEWSBRIDGE_TEST_TOKEN", "")
	if got := cfg.ExtractAPIKey(); got != "" {
		t.Errorf("expected empty key, got %q", got)
	}

	t.Setenv("NEWSBRIDGE_TEST_TOKEN", " secret ")
	if got := cfg.ExtractAPIKey(); got != "secret" {
		t.Errorf("expected 'secret', got %q", got)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
