package config

import (
	"errors"
	"testing"

	"ramble/internal/metrics"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AlignedBits != DefaultAlignedBits {
		t.Errorf("AlignedBits = %d, want %d", cfg.AlignedBits, DefaultAlignedBits)
	}
	if cfg.ContiguousDramAddr != DefaultContiguousDramAddr {
		t.Errorf("ContiguousDramAddr = %d, want %d", cfg.ContiguousDramAddr, DefaultContiguousDramAddr)
	}
	if cfg.HammerMultiplier != DefaultHammerMultiplier {
		t.Errorf("HammerMultiplier = %d, want %d", cfg.HammerMultiplier, DefaultHammerMultiplier)
	}
	if cfg.Arch == nil {
		t.Fatal("Load() left Arch nil")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RAMBLE_ALIGNED_BITS", "30")
	t.Setenv("RAMBLE_HAMMER_MULTIPLIER", "3")
	t.Setenv("RAMBLE_DUAL_RANK", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AlignedBits != 30 {
		t.Errorf("AlignedBits = %d, want 30", cfg.AlignedBits)
	}
	if cfg.HammerMultiplier != 3 {
		t.Errorf("HammerMultiplier = %d, want 3", cfg.HammerMultiplier)
	}
}

func TestLoadMetricsKnob(t *testing.T) {
	t.Cleanup(func() { metrics.Enabled = false })
	t.Setenv("RAMBLE_METRICS", "true")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !metrics.Enabled {
		t.Error("metrics.Enabled = false, want true after RAMBLE_METRICS=true")
	}
}

func TestLoadMalformedEnvReturnsParseError(t *testing.T) {
	t.Setenv("RAMBLE_ALIGNED_BITS", "not-a-number")

	_, err := Load()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Load() error = %v, want *ParseError", err)
	}
	if pe.Env != "RAMBLE_ALIGNED_BITS" {
		t.Errorf("ParseError.Env = %q, want RAMBLE_ALIGNED_BITS", pe.Env)
	}
}
