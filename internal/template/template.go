// Package template implements the pattern-driven flip-discovery engine: it
// drives complementary patterns into aggressor and victim rows, hammers the
// aggressors, and scans the victim for bit deviations, cataloging each as a
// dram.Flip.
package template

import (
	"fmt"
	"os"

	"ramble/internal/dram"
	"ramble/internal/hammer"
	"ramble/internal/memmap"
	"ramble/internal/metrics"
)

// rowState names the disposition Template2MBContig reaches for one row,
// purely for observability: it never feeds back into discovery semantics.
type rowState uint8

const (
	rowSkippedSentinel rowState = iota
	rowSkippedFiltered
	rowSkippedNoVictim
	rowSkippedNoNeighbor
	rowSkippedNoAggressor
	rowScanned
)

func (s rowState) String() string {
	switch s {
	case rowSkippedSentinel:
		return "skipped_sentinel"
	case rowSkippedFiltered:
		return "skipped_filtered"
	case rowSkippedNoVictim:
		return "skipped_no_victim"
	case rowSkippedNoNeighbor:
		return "skipped_no_neighbor"
	case rowSkippedNoAggressor:
		return "skipped_no_aggressor"
	case rowScanned:
		return "scanned"
	default:
		return "unknown"
	}
}

// logRowState emits a one-line transition record at the subsystem boundary
// convention the rest of ramble follows: free-standing fmt.Fprintf(os.Stderr, ...).
func logRowState(rk dram.RowKey, s rowState) {
	fmt.Fprintf(os.Stderr, "template: row=%d bank=%d state=%s\n", rk.Row, rk.Bank, s)
}

// RowFilter restricts Template2MBContig to a subset of rows when non-nil;
// a row key not present in the set is skipped as if it had no neighbors.
// Lets a caller re-scan a narrow slice of a buffer without re-templating
// the whole thing.
type RowFilter map[dram.RowKey]struct{}

// Allows reports whether k passes f; a nil filter allows everything.
func (f RowFilter) Allows(k dram.RowKey) bool {
	if f == nil {
		return true
	}
	_, ok := f[k]
	return ok
}

// FindFlips compares expected against actual for the byte at da and emits
// one Flip per differing bit, direction derived from the corresponding bit
// of expected: a 1-bit in expected that reads back 0 is a 1->0 flip, and a
// 0-bit in expected that reads back 1 is a 0->1 flip.
func FindFlips(da dram.DramAddr, expected, actual byte) []dram.Flip {
	diff := expected ^ actual
	if diff == 0 {
		return nil
	}
	var flips []dram.Flip
	for bit := uint8(0); bit < 8; bit++ {
		if diff&(1<<bit) == 0 {
			continue
		}
		pos := da
		pos.Bit = bit
		dir := dram.Flip0to1
		if expected&(1<<bit) != 0 {
			dir = dram.Flip1to0
		}
		flips = append(flips, dram.Flip{Dir: dir, Pos: pos})
	}
	return flips
}

// ProfileAddr targets a single bit: it writes p into the cells one row
// above and one row below da's row (same bank/column), !p into da's own
// cell, hammers the two aggressors, then rescans da's byte for deviation
// from !p.
func ProfileAddr(mm *memmap.MemMap, da dram.DramAddr, p byte, cfg *dram.Config) ([]dram.Flip, error) {
	above, ok := da.RowAbove()
	if !ok {
		return nil, dram.NewError(dram.SentinelRow, "row has no row-above neighbor", nil)
	}
	below, ok := da.RowBelow()
	if !ok {
		return nil, dram.NewError(dram.SentinelRow, "row has no row-below neighbor", nil)
	}

	notP := ^p
	mm.WriteDramByte(above, p, cfg)
	mm.WriteDramByte(below, p, cfg)
	mm.WriteDramByte(da, notP, cfg)

	p1 := mm.DramToVirt(above, cfg)
	p2 := mm.DramToVirt(below, cfg)
	hammer.Hammer(p1, p2, cfg.ReadsPerHammer)

	actual := mm.ReadDramByte(da, cfg)
	return FindFlips(da, notP, actual), nil
}

// ProfileRanges targets range sets: r1 and r2 (the aggressor ranges) are
// filled with p, v (the victim ranges) with !p; the aggressors are hammered
// using the first byte of r1 against the first byte of r2; every byte of
// every victim range is then rescanned for deviation from !p.
func ProfileRanges(mm *memmap.MemMap, r1, r2, v []dram.DramRange, p byte, cfg *dram.Config) []dram.Flip {
	notP := ^p
	mm.FillRanges(r1, p, cfg)
	mm.FillRanges(r2, p, cfg)
	mm.FillRanges(v, notP, cfg)

	if len(r1) == 0 || len(r2) == 0 {
		return nil
	}
	p1 := mm.DramToVirt(r1[0].Start, cfg)
	p2 := mm.DramToVirt(r2[0].Start, cfg)
	hammer.Hammer(p1, p2, cfg.ReadsPerHammer)
	metrics.Default.RangesScanned.Add(int64(len(v)))

	var flips []dram.Flip
	for _, rng := range v {
		start := int(cfg.Arch.DramToPhys(rng.Start))
		for i := 0; i < rng.Bytes; i++ {
			phys := dram.PhysAddr(start + i)
			da := cfg.AddrAt(phys)
			actual := mm.ReadByte(start + i)
			found := FindFlips(da, notP, actual)
			flips = append(flips, found...)
			metrics.Default.FlipsFound.Add(int64(len(found)))
		}
	}
	return flips
}

// Template2MBContig walks every row in mm that has both a row-above and a
// row-below range present, skipping sentinel rows (0 and 0xFFFF) and any
// row excluded by filter, and runs ProfileRanges twice per row: once with
// pattern 0x00 (aggressors 0, victim 0xFF) and once with 0xFF (aggressors
// 0xFF, victim 0). The two passes flush out flips leaking in both
// directions. filter may be nil to scan every row.
func Template2MBContig(mm *memmap.MemMap, cfg *dram.Config, filter RowFilter) []dram.Flip {
	var flips []dram.Flip
	for _, rk := range mm.Rows() {
		if dram.IsSentinelRow(rk.Row) {
			logRowState(rk, rowSkippedSentinel)
			continue
		}
		if !filter.Allows(rk) {
			logRowState(rk, rowSkippedFiltered)
			continue
		}
		victim := mm.SameRowRanges(dram.DramAddr{Chan: rk.Chan, Dimm: rk.Dimm, Rank: rk.Rank, Bank: rk.Bank, Row: rk.Row})
		if len(victim) == 0 {
			logRowState(rk, rowSkippedNoVictim)
			continue
		}
		above, ok := victim[0].Start.RowAbove()
		if !ok {
			logRowState(rk, rowSkippedNoNeighbor)
			continue
		}
		below, ok := victim[0].Start.RowBelow()
		if !ok {
			logRowState(rk, rowSkippedNoNeighbor)
			continue
		}
		aggAbove := mm.SameRowRanges(above)
		aggBelow := mm.SameRowRanges(below)
		if len(aggAbove) == 0 || len(aggBelow) == 0 {
			metrics.Default.RowsSkipped.Inc()
			logRowState(rk, rowSkippedNoAggressor)
			continue
		}

		logRowState(rk, rowScanned)
		flips = append(flips, ProfileRanges(mm, aggAbove, aggBelow, victim, 0x00, cfg)...)
		flips = append(flips, ProfileRanges(mm, aggAbove, aggBelow, victim, 0xFF, cfg)...)
	}
	return flips
}
