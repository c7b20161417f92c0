// Package diag provides read-only diagnostics over /proc/self/pagemap and
// the kernel buddy allocator statistics, used only to verify a procured
// buffer's physical contiguity and to size the buddy-drain strategy; the
// attack itself never depends on a pagemap lookup.
package diag

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"ramble/internal/dram"
)

// /proc/pid/pagemap bits, from fs/proc/task_mmu.c.
const (
	pmPresentBit = 63
	pmPFNMask    = uint64(1)<<55 - 1
)

// pagemapPath is a var, not a const, so tests can point it at a fixture.
var pagemapPath = "/proc/self/pagemap"

// decodePagemapEntry turns a raw 8-byte /proc/pid/pagemap entry and the
// byte's offset within its page into a physical address, split out from
// VirtToPhys so the bit arithmetic is testable without a real pagemap.
func decodePagemapEntry(bits uint64, pageSize, offsetInPage uint64, pageNum uint64) (dram.PhysAddr, error) {
	if bits&(uint64(1)<<pmPresentBit) == 0 {
		return 0, dram.NewError(dram.EnvUnavailable, fmt.Sprintf("page %d not present", pageNum), nil)
	}
	pfn := bits & pmPFNMask
	return dram.PhysAddr(pfn*pageSize + offsetInPage), nil
}

// VirtToPhys resolves the physical address backing the page containing p
// by reading this process's /proc/self/pagemap entry for that page.
func VirtToPhys(p *byte) (dram.PhysAddr, error) {
	pageSize := uint64(unix.Getpagesize())
	v := uint64(uintptr(unsafe.Pointer(p)))
	pageNum := v / pageSize

	f, err := os.Open(pagemapPath)
	if err != nil {
		return 0, dram.NewError(dram.EnvUnavailable, "open "+pagemapPath, err)
	}
	defer f.Close()

	var entry [8]byte
	if _, err := f.ReadAt(entry[:], int64(pageNum*8)); err != nil {
		return 0, dram.NewError(dram.EnvUnavailable, "read "+pagemapPath+" entry", err)
	}
	bits := binary.LittleEndian.Uint64(entry[:])
	return decodePagemapEntry(bits, pageSize, v%pageSize, pageNum)
}

// CheckContiguity reports whether the byte span [base, base+length) is
// physically contiguous, by resolving the physical address of its first
// and last byte via VirtToPhys and comparing against length. Exposed as
// its own diagnostic operation (not just an internal memproc helper) so a
// buffer acquired by any means can be independently re-verified.
func CheckContiguity(base []byte) error {
	if len(base) == 0 {
		return nil
	}
	start, err := VirtToPhys(&base[0])
	if err != nil {
		return err
	}
	end, err := VirtToPhys(&base[len(base)-1])
	if err != nil {
		return err
	}
	if uint64(start)+uint64(len(base))-1 != uint64(end) {
		return dram.NewError(dram.NotContiguous, fmt.Sprintf("start_phys=%#x len=%d end_phys=%#x", start, len(base), end), nil)
	}
	return nil
}
