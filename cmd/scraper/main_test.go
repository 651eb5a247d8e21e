package main

import (
	"testing"
	"time"

	"github.com/lmoreira/bookharvest/config"
)

// The duration flags take milliseconds; feeding DefaultConfig's values
// through the same conversion the flag defaults use must reproduce the
// config exactly, so the two sets of defaults cannot drift.
func TestFlagDefaultsRoundTripConfigDefaults(t *testing.T) {
	defaults := config.DefaultConfig()

	cfg := buildConfigFromFlags(
		defaults.BaseURL,
		defaults.MaxPages,
		defaults.Workers,
		int(defaults.SerialDelay/time.Millisecond),
		defaults.MaxAttempts,
		int(defaults.RetryBackoff/time.Millisecond),
		int(defaults.RetryBackoffMax/time.Millisecond),
		defaults.RespectRobotsTxt,
		defaults.OutputFile,
		defaults.OutputFormat,
		defaults.Verbose,
		defaults.MetricsAddr,
		defaults.FailOnZeroSuccess,
	)

	if cfg.SerialDelay != defaults.SerialDelay {
		t.Fatalf("serial delay=%v, want %v", cfg.SerialDelay, defaults.SerialDelay)
	}
	if cfg.RetryBackoff != defaults.RetryBackoff {
		t.Fatalf("retry backoff=%v, want %v", cfg.RetryBackoff, defaults.RetryBackoff)
	}
	if cfg.RetryBackoffMax != defaults.RetryBackoffMax {
		t.Fatalf("retry backoff max=%v, want %v", cfg.RetryBackoffMax, defaults.RetryBackoffMax)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
