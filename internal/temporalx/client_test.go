package temporalx

import (
	"testing"
	"time"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{6, 5 * time.Second},
	}
	for _, c := range cases {
		if got := ClampBackoff(250*time.Millisecond, 5*time.Second, c.attempt); got != c.want {
			t.Fatalf("ClampBackoff(attempt=%d): want=%v got=%v", c.attempt, c.want, got)
		}
	}
}

func TestLoadConfigDisabledWithoutAddress(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_TASK_QUEUE", "")
	cfg := LoadConfig()
	if cfg.Enabled() {
		t.Fatalf("Enabled: want=false got=true")
	}
	if cfg.TaskQueue != "contentlib-search" || cfg.Namespace != "contentlib" {
		t.Fatalf("defaults: namespace=%q task_queue=%q", cfg.Namespace, cfg.TaskQueue)
	}
}

func TestLoadTLSConfigRequiresKeyPair(t *testing.T) {
	if _, err := loadTLSConfig(Config{ClientCAPath: "/tmp/ca.pem"}); err == nil {
		t.Fatalf("want error when only a CA path is set")
	}
}
