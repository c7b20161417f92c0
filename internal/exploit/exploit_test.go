package exploit

import (
	"errors"
	"testing"
	"time"
	"unsafe"

	"ramble/internal/dram"
	"ramble/internal/memmap"
)

type bankRowArch struct{}

func (bankRowArch) PhysToDram(p dram.PhysAddr) dram.DramAddr {
	return dram.DramAddr{Bank: uint8((p / 256) % 2), Row: uint16(p / 512)}
}

func (bankRowArch) DramToPhys(d dram.DramAddr) dram.PhysAddr {
	return dram.PhysAddr(d.Row)*512 + dram.PhysAddr(d.Bank)*256
}

func (bankRowArch) RefreshPeriod() time.Duration { return 64 * time.Millisecond }

func newTestMemMap(t *testing.T) (*memmap.MemMap, *dram.Config) {
	t.Helper()
	cfg := &dram.Config{ContiguousDramAddr: 256, Arch: bankRowArch{}}
	buf := make([]byte, 2048)
	mm := memmap.New(uintptr(unsafe.Pointer(&buf[0])), len(buf), cfg)
	return mm, cfg
}

// simulateNeighborValue returns a hammerFunc that sets the victim's targeted
// bit to v, modeling a harness where the row-above neighbor's bit is known
// to be v and the flip reliably fires whenever the neighbor disagrees with
// the victim's starting polarity.
func simulateNeighborValue(mm *memmap.MemMap, f dram.Flip, cfg *dram.Config, v bool) hammerFunc {
	return func(p1, p2 unsafe.Pointer, n int) {
		cur := mm.ReadDramByte(f.Pos, cfg)
		if v {
			cur |= 1 << f.Pos.Bit
		} else {
			cur &^= 1 << f.Pos.Bit
		}
		mm.WriteDramByte(f.Pos, cur, cfg)
	}
}

func TestExploitBitReadsSimulatedNeighborValue(t *testing.T) {
	for _, v := range []bool{true, false} {
		t.Run(boolName(v), func(t *testing.T) {
			mm, cfg := newTestMemMap(t)
			f := dram.Flip{Dir: dram.Flip0to1, Pos: dram.DramAddr{Bank: 0, Row: 1}}

			got, err := exploitBit(mm, f, cfg, nil, simulateNeighborValue(mm, f, cfg, v))
			if err != nil {
				t.Fatalf("exploitBit() error = %v", err)
			}
			if got != v {
				t.Errorf("exploitBit() = %v, want %v", got, v)
			}
		})
	}
}

func boolName(b bool) string {
	if b {
		return "neighbor_set"
	}
	return "neighbor_clear"
}

func TestExploitBitPropagatesPlaceSecretError(t *testing.T) {
	mm, cfg := newTestMemMap(t)
	f := dram.Flip{Dir: dram.Flip0to1, Pos: dram.DramAddr{Bank: 0, Row: 1}}

	sentinel := errors.New("no eviction strategy")
	failing := func(mm *memmap.MemMap, rowAligned dram.DramAddr, cfg *dram.Config) error {
		return sentinel
	}

	_, err := ExploitBit(mm, f, cfg, failing)
	if !errors.Is(err, sentinel) {
		t.Errorf("ExploitBit() error = %v, want %v", err, sentinel)
	}
}

func TestDefaultPlaceSecretFails(t *testing.T) {
	mm, cfg := newTestMemMap(t)
	err := DefaultPlaceSecret(mm, dram.DramAddr{}, cfg)
	var de *dram.Error
	if !errors.As(err, &de) || de.Kind != dram.NoSecretPlacement {
		t.Errorf("DefaultPlaceSecret() error = %v, want NoSecretPlacement", err)
	}
}

func TestExploitBitSentinelRowError(t *testing.T) {
	mm, cfg := newTestMemMap(t)
	f := dram.Flip{Dir: dram.Flip0to1, Pos: dram.DramAddr{Bank: 0, Row: dram.SentinelRowZero}}

	_, err := ExploitBit(mm, f, cfg, func(*memmap.MemMap, dram.DramAddr, *dram.Config) error { return nil })
	if err == nil {
		t.Fatal("ExploitBit() on a sentinel row should error")
	}
}
