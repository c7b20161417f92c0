// Package config assembles a dram.Config from built-in defaults overridden
// by environment variables, so a CLI invocation needs no flags to exercise
// the common case of "the one memory controller this box has".
package config

import (
	"os"
	"strconv"

	"ramble/internal/arch"
	"ramble/internal/dram"
	"ramble/internal/metrics"
)

// Defaults mirror the reference Ivy Bridge controller with no dual-channel,
// dual-DIMM, or dual-rank knobs set, a 2 MiB contiguity quantum, and a 2x
// hammer multiplier (see DESIGN.md's Open Question decision).
const (
	DefaultAlignedBits        = 21
	DefaultContiguousDramAddr = 1 << 21
	DefaultHammerMultiplier   = 2
)

// knob pairs an environment variable with the function that parses it into
// its Config field, so Load's body is a flat table rather than one
// os.Getenv call per field.
type knob struct {
	env     string
	apply   func(cfg *dram.Config, v string) error
}

var knobs = []knob{
	{"RAMBLE_ALIGNED_BITS", func(c *dram.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.AlignedBits = n
		return nil
	}},
	{"RAMBLE_CONTIGUOUS_DRAM_ADDR", func(c *dram.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.ContiguousDramAddr = n
		return nil
	}},
	{"RAMBLE_HAMMER_MULTIPLIER", func(c *dram.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.HammerMultiplier = n
		return nil
	}},
	{"RAMBLE_READS_PER_HAMMER", func(c *dram.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.ReadsPerHammer = n
		return nil
	}},
}

// archKnobs configures the pluggable IvyBridge booleans via their own
// environment variables, applied before the numeric knobs.
var archKnobs = []struct {
	env    string
	assign func(a *arch.IvyBridge, v bool)
}{
	{"RAMBLE_DUAL_CHANNEL", func(a *arch.IvyBridge, v bool) { a.DualChannel = v }},
	{"RAMBLE_DUAL_DIMM", func(a *arch.IvyBridge, v bool) { a.DualDimm = v }},
	{"RAMBLE_DUAL_RANK", func(a *arch.IvyBridge, v bool) { a.DualRank = v }},
}

// Load builds a dram.Config from defaults, then environment overrides. It
// returns an error naming the first malformed environment variable it
// encounters; a missing variable is not an error.
func Load() (*dram.Config, error) {
	if v, ok := os.LookupEnv("RAMBLE_METRICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ParseError{Env: "RAMBLE_METRICS", Value: v, Err: err}
		}
		metrics.Enabled = b
	}

	ivy := arch.IvyBridge{}
	for _, k := range archKnobs {
		v, ok := os.LookupEnv(k.env)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ParseError{Env: k.env, Value: v, Err: err}
		}
		k.assign(&ivy, b)
	}

	cfg := &dram.Config{
		AlignedBits:        DefaultAlignedBits,
		ContiguousDramAddr: DefaultContiguousDramAddr,
		HammerMultiplier:   DefaultHammerMultiplier,
		Arch:               ivy,
	}

	for _, k := range knobs {
		v, ok := os.LookupEnv(k.env)
		if !ok {
			continue
		}
		if err := k.apply(cfg, v); err != nil {
			return nil, &ParseError{Env: k.env, Value: v, Err: err}
		}
	}

	return cfg, nil
}

// ParseError names the environment variable that failed to parse.
type ParseError struct {
	Env   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return e.Env + "=" + e.Value + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
