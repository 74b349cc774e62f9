package outbox

import (
	"testing"
	"time"
)

func TestBackoffCapsAtFiveSeconds(t *testing.T) {
	s := &Submitter{cfg: &SubmitterConfig{BackoffBase: DefaultBackoffBase}}

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{4, 1000 * time.Millisecond},
		{100, maxBackoff},
	}

	for _, tc := range cases {
		if got := s.backoff(tc.retryCount); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}

func TestDefaultSubmitterConfig(t *testing.T) {
	cfg := DefaultSubmitterConfig()
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected default max retries %d, got %d", DefaultMaxRetries, cfg.MaxRetries)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("unexpected default poll interval: %v", cfg.PollInterval)
	}
}
