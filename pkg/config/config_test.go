package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg.ListenAddr != want.ListenAddr || cfg.HistoryLimit != want.HistoryLimit {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverridesAndSanitizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"listen_addr": ":9000", "history_limit": -5, "rate_limit": {"window_seconds": 2}}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.HistoryLimit != Default().HistoryLimit {
		t.Errorf("HistoryLimit = %d, want sanitized default %d", cfg.HistoryLimit, Default().HistoryLimit)
	}
	if cfg.RateLimitWindow() != 2*time.Second {
		t.Errorf("RateLimitWindow() = %v, want 2s", cfg.RateLimitWindow())
	}
	if cfg.RateLimit.MaxRequests != Default().RateLimit.MaxRequests {
		t.Errorf("MaxRequests = %d, want default", cfg.RateLimit.MaxRequests)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed JSON")
	}
}
