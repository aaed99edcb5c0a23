package worker

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Shards != 4 || cfg.QueueSize != 128 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts default = %d, want 1 (no automatic retries)", cfg.MaxAttempts)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CSYNC_SHARDS", "8")
	t.Setenv("CSYNC_QUEUE_SIZE", "256")
	t.Setenv("CSYNC_ENQUEUE_TIMEOUT", "250ms")
	t.Setenv("CSYNC_MAX_ATTEMPTS", "5")
	t.Setenv("CSYNC_BASE_BACKOFF", "200ms")
	t.Setenv("CSYNC_MAX_INTERVAL", "5s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Shards != 8 || cfg.QueueSize != 256 {
		t.Fatalf("unexpected Shards/QueueSize: %+v", cfg)
	}
	if cfg.EnqueueTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected EnqueueTimeout: %v", cfg.EnqueueTimeout)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("unexpected MaxAttempts: %v", cfg.MaxAttempts)
	}
	if cfg.BaseBackoff != 200*time.Millisecond || cfg.MaxInterval != 5*time.Second {
		t.Fatalf("unexpected backoff settings: base=%v max=%v", cfg.BaseBackoff, cfg.MaxInterval)
	}
}
