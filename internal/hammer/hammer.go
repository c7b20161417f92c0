// Package hammer implements the cache-line-flushed interleaved aggressor
// access loop and the calibration procedure that finds the largest
// iteration count that fits inside one DRAM refresh interval.
package hammer

import (
	"fmt"
	"time"
	"unsafe"

	"ramble/internal/dram"
	"ramble/internal/hammer/asm"
	"ramble/internal/memmap"
	"ramble/internal/metrics"
)

// Hammer performs n iterations of: load a1; flush a1; load a2; flush a2.
// Ordering is preserved because every load and flush is a call into real
// assembly (internal/hammer/asm) — the Go compiler can neither reorder
// across nor eliminate a call whose side effects it cannot see into, which
// is the guarantee needed without requiring Go's "inline asm" (Go has none;
// per-primitive .s functions are the idiomatic stand-in, see DESIGN.md). No
// allocation, no system call, and no suspension point appears inside the
// loop.
func Hammer(a1, a2 unsafe.Pointer, n int) {
	for i := 0; i < n; i++ {
		asm.Load8(a1)
		asm.Clflush(a1)
		asm.Load8(a2)
		asm.Clflush(a2)
	}
	metrics.Default.BytesHammered.Add(int64(2 * n))
}

// overshootNumerator/overshootDenominator encode the permitted 1 + 1/32
// calibration overshoot ceiling as an exact rational to avoid floating
// point drift across long calibration runs.
const (
	overshootNumerator   = 33
	overshootDenominator = 32
)

// timer abstracts the wall clock so tests can supply a synthetic one (e.g.
// a fake clock where each iteration costs exactly 1 µs).
type timer interface {
	// Time returns how long hammering a1/a2 for n iterations took.
	Time(a1, a2 unsafe.Pointer, n int) time.Duration
}

type wallClock struct{}

func (wallClock) Time(a1, a2 unsafe.Pointer, n int) time.Duration {
	start := time.Now()
	Hammer(a1, a2, n)
	return time.Since(start)
}

// findRowConflict scans mm for the first pair of ranges that share a bank
// but differ in row — the precondition calibration needs to anchor its
// timing measurements on a real row conflict rather than two accesses the
// memory controller can satisfy from an open row buffer.
func findRowConflict(mm *memmap.MemMap) (dram.DramAddr, dram.DramAddr, error) {
	rows := mm.Rows()
	for i, rk := range rows {
		ranges := mm.SameRowRanges(dram.DramAddr{Chan: rk.Chan, Dimm: rk.Dimm, Rank: rk.Rank, Bank: rk.Bank, Row: rk.Row})
		if len(ranges) == 0 {
			continue
		}
		a1 := ranges[0].Start
		for j := i + 1; j < len(rows); j++ {
			ok := rk.Chan == rows[j].Chan && rk.Dimm == rows[j].Dimm &&
				rk.Rank == rows[j].Rank && rk.Bank == rows[j].Bank && rk.Row != rows[j].Row
			if !ok {
				continue
			}
			other := mm.SameRowRanges(dram.DramAddr{
				Chan: rows[j].Chan, Dimm: rows[j].Dimm, Rank: rows[j].Rank,
				Bank: rows[j].Bank, Row: rows[j].Row,
			})
			if len(other) == 0 {
				continue
			}
			return a1, other[0].Start, nil
		}
	}
	return dram.DramAddr{}, dram.DramAddr{}, dram.NewError(dram.NoRowConflict, "no two ranges share a bank with different rows", nil)
}

// Calibrate implements the binary-search calibration procedure: find the
// largest N such that hammer(a1,a2,N) takes strictly less than one refresh
// period, permitting overshoot up to 1+1/32 of the period before rejecting a
// candidate outright. The result is scaled by cfg.HammerMultiplier (2x by
// default) to ensure each row is opened and closed multiple times per
// refresh window, and written back into cfg.ReadsPerHammer.
func Calibrate(mm *memmap.MemMap, cfg *dram.Config) (int, dram.DramAddr, dram.DramAddr, error) {
	if err := VerifyCodegen(); err != nil {
		return 0, dram.DramAddr{}, dram.DramAddr{}, err
	}
	return calibrate(mm, cfg, wallClock{})
}

func calibrate(mm *memmap.MemMap, cfg *dram.Config, clk timer) (int, dram.DramAddr, dram.DramAddr, error) {
	a1, a2, err := findRowConflict(mm)
	if err != nil {
		return 0, dram.DramAddr{}, dram.DramAddr{}, err
	}
	p1 := mm.DramToVirt(a1, cfg)
	p2 := mm.DramToVirt(a2, cfg)

	refresh := cfg.Arch.RefreshPeriod()
	ceiling := refresh * overshootNumerator / overshootDenominator

	n := 0
	for g := 1 << 20; g >= 1; g /= 2 {
		elapsed := clk.Time(p1, p2, n+g)
		switch {
		case elapsed < refresh:
			n += g
		case elapsed >= ceiling:
			// reject this granularity entirely, keep halving
		default:
			n += g
			mult := cfg.HammerMultiplier
			if mult <= 0 {
				mult = 2
			}
			cfg.ReadsPerHammer = n * mult
			return n, a1, a2, nil
		}
	}
	mult := cfg.HammerMultiplier
	if mult <= 0 {
		mult = 2
	}
	cfg.ReadsPerHammer = n * mult
	return n, a1, a2, nil
}

// Report renders a one-line human-readable summary of a calibration result
// in plain fmt.Sprintf form; it is the caller's job to pick the writer.
func Report(a1, a2 dram.DramAddr, n int, cfg *dram.Config) string {
	return fmt.Sprintf("calibration: row-conflict rows=%d/%d reads_per_refresh=%d reads_per_hammer=%d",
		a1.Row, a2.Row, n, cfg.ReadsPerHammer)
}
