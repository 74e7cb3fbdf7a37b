package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // 避免讀到專案根目錄的 .env
	for _, k := range []string{"STORE_DRIVER", "HTTP_ADDR", "TRANSFER_TIMEOUT", "HISTORY_LIMIT", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("TRANSFER_TIMEOUT", "5s")
	t.Setenv("HISTORY_LIMIT", "50")

	cfg := Load(nil)
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("driver=%q want memory", cfg.StoreDriver)
	}
	if cfg.TransferTimeout != 5*time.Second {
		t.Fatalf("timeout=%v want 5s", cfg.TransferTimeout)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("history limit=%d want 50", cfg.HistoryLimit)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("redis addr=%q want empty", cfg.RedisAddr)
	}
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "Oracle")
	t.Setenv("TRANSFER_TIMEOUT", "3")
	t.Setenv("BALANCE_CACHE_TTL", "not-a-duration")
	t.Setenv("HISTORY_LIMIT", "abc")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load(nil)
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("unknown driver should fall back to memory, got %q", cfg.StoreDriver)
	}
	if cfg.TransferTimeout != 3*time.Second {
		t.Fatalf("timeout=%v want 3s", cfg.TransferTimeout)
	}
	if cfg.BalanceCacheTTL != 30*time.Second {
		t.Fatalf("ttl=%v want default 30s", cfg.BalanceCacheTTL)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("history limit=%d want default 50", cfg.HistoryLimit)
	}
	if !cfg.OTelEnabled {
		t.Fatal("otel should be enabled")
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	got := GetEnvAsList("CORS_ALLOWED_ORIGINS", nil, nil)
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("got %v", got)
	}
	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	if got := GetEnvAsList("CORS_ALLOWED_ORIGINS", []string{"x"}, nil); len(got) != 1 || got[0] != "x" {
		t.Fatalf("blank list should use default, got %v", got)
	}
}
