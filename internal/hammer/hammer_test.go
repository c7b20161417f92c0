package hammer

import (
	"errors"
	"testing"
	"time"
	"unsafe"

	"ramble/internal/dram"
	"ramble/internal/memmap"
)

// microClock is a synthetic timer where each iteration costs exactly
// 1 microsecond, independent of the addresses hammered.
type microClock struct{}

func (microClock) Time(a1, a2 unsafe.Pointer, n int) time.Duration {
	return time.Duration(n) * time.Microsecond
}

// bankRowArch is a trivial test-only Architecture with a predictable,
// easily-inverted bank/row assignment: every 256-byte quantum belongs to
// bank (offset/256)%2 and row offset/512, so two quanta 512 bytes apart are
// guaranteed to share a bank and differ in row — exactly the row-conflict
// precondition calibration needs, without depending on the real Ivy Bridge
// XOR cascade's bank/row boundaries lining up for an arbitrary buffer size.
type bankRowArch struct{}

func (bankRowArch) PhysToDram(p dram.PhysAddr) dram.DramAddr {
	return dram.DramAddr{
		Bank: uint8((p / 256) % 2),
		Row:  uint16(p / 512),
	}
}

func (bankRowArch) DramToPhys(d dram.DramAddr) dram.PhysAddr {
	return dram.PhysAddr(d.Row)*512 + dram.PhysAddr(d.Bank)*256
}

func (bankRowArch) RefreshPeriod() time.Duration { return 64 * time.Millisecond }

func newRowConflictMemMap(t *testing.T, cfg *dram.Config) *memmap.MemMap {
	t.Helper()
	return memmap.New(0, 2048, cfg)
}

func TestCalibrateMonotonicity(t *testing.T) {
	cfg := &dram.Config{
		ContiguousDramAddr: 256,
		Arch:               bankRowArch{},
		HammerMultiplier:   1, // isolate reads_per_refresh itself
	}
	mm := newRowConflictMemMap(t, cfg)

	n, a1, a2, err := calibrate(mm, cfg, microClock{})
	if err != nil {
		t.Fatalf("calibrate() error = %v", err)
	}
	if n < 64_000 || n > 66_000 {
		t.Errorf("reads_per_refresh = %d, want in [64000, 66000]", n)
	}
	if cfg.ReadsPerHammer != n {
		t.Errorf("ReadsPerHammer = %d, want %d (multiplier=1)", cfg.ReadsPerHammer, n)
	}
	if a1.Row == a2.Row {
		t.Errorf("row-conflict pair shares a row: %d == %d", a1.Row, a2.Row)
	}
}

func TestCalibrateDefaultMultiplier(t *testing.T) {
	cfg := &dram.Config{ContiguousDramAddr: 256, Arch: bankRowArch{}}
	mm := newRowConflictMemMap(t, cfg)

	n, _, _, err := calibrate(mm, cfg, microClock{})
	if err != nil {
		t.Fatalf("calibrate() error = %v", err)
	}
	if cfg.ReadsPerHammer != n*2 {
		t.Errorf("ReadsPerHammer = %d, want %d (default multiplier 2)", cfg.ReadsPerHammer, n*2)
	}
}

func TestCalibrateNoRowConflict(t *testing.T) {
	// A single-range buffer has only one row key, so no conflicting pair
	// exists.
	cfg := &dram.Config{ContiguousDramAddr: 64, Arch: bankRowArch{}}
	mm := memmap.New(0, 64, cfg)

	_, _, _, err := calibrate(mm, cfg, microClock{})
	var de *dram.Error
	if !errors.As(err, &de) || de.Kind != dram.NoRowConflict {
		t.Errorf("calibrate() error = %v, want NoRowConflict", err)
	}
}
