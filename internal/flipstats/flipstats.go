// Package flipstats characterizes a candidate flip's sensitivity to the
// data pattern held by its neighboring rows, distinguishing flips useful
// for a Rambleed-style read (high striped-complement, low uniform
// frequency) from flips that fire regardless of neighbor contents.
package flipstats

import (
	"ramble/internal/dram"
	"ramble/internal/hammer"
	"ramble/internal/memmap"
)

// DefaultTrials is the number of repetitions per configuration absent an
// explicit override.
const DefaultTrials = 20

// idFill returns the cell's starting polarity for a flip of direction dir:
// a 0->1 flip starts at 0, a 1->0 flip starts at 1.
func idFill(dir dram.FlipDir) byte {
	if dir == dram.Flip0to1 {
		return 0x00
	}
	return 0xFF
}

// complFill returns the polarity opposite idFill(dir).
func complFill(dir dram.FlipDir) byte {
	return ^idFill(dir)
}

// hammerBit writes aboveFill/victimFill/belowFill into the single-byte
// ranges bracketing pos, hammers row-above against row-below at the
// calibrated rate, and reports whether the victim byte changed from
// victimFill.
func hammerBit(mm *memmap.MemMap, pos dram.DramAddr, aboveFill, victimFill, belowFill byte, cfg *dram.Config) (bool, error) {
	above, ok := pos.RowAbove()
	if !ok {
		return false, dram.NewError(dram.SentinelRow, "row has no row-above neighbor", nil)
	}
	below, ok := pos.RowBelow()
	if !ok {
		return false, dram.NewError(dram.SentinelRow, "row has no row-below neighbor", nil)
	}

	mm.WriteDramByte(above, aboveFill, cfg)
	mm.WriteDramByte(pos, victimFill, cfg)
	mm.WriteDramByte(below, belowFill, cfg)

	p1 := mm.DramToVirt(above, cfg)
	p2 := mm.DramToVirt(below, cfg)
	hammer.Hammer(p1, p2, cfg.ReadsPerHammer)

	return mm.ReadDramByte(pos, cfg) != victimFill, nil
}

// configuration names one of the four aggressor/victim fill arrangements
// from the fill-matrix: Above, Victim, Below are each either "from"
// (the cell's starting polarity) or "to" (its complement).
type configuration struct {
	above, victim, below func(dram.FlipDir) byte
}

var configurations = map[string]configuration{
	"below_complement":   {idFill, idFill, complFill},
	"striped_complement": {complFill, idFill, complFill},
	"uniform":            {idFill, idFill, idFill},
	"above_complement":   {complFill, idFill, idFill},
}

// Characterize runs DefaultTrials repetitions of hammerBit under each of
// the four fill configurations and records the empirical flip frequency in
// f.Stats. A flip useful for a Rambleed read exhibits high
// StripedComplement and low Uniform: it fires only when its neighbors
// disagree with it.
func Characterize(mm *memmap.MemMap, f *dram.Flip, cfg *dram.Config) error {
	return characterize(mm, f, cfg, DefaultTrials)
}

func characterize(mm *memmap.MemMap, f *dram.Flip, cfg *dram.Config, trials int) error {
	stats := &dram.FlipStats{}
	for name, c := range configurations {
		hits := 0
		for i := 0; i < trials; i++ {
			flipped, err := hammerBit(mm, f.Pos, c.above(f.Dir), c.victim(f.Dir), c.below(f.Dir), cfg)
			if err != nil {
				return err
			}
			if flipped {
				hits++
			}
		}
		freq := float64(hits) / float64(trials)
		switch name {
		case "below_complement":
			stats.BelowComplement = freq
		case "striped_complement":
			stats.StripedComplement = freq
		case "uniform":
			stats.Uniform = freq
		case "above_complement":
			stats.AboveComplement = freq
		}
	}
	f.Stats = stats
	return nil
}
