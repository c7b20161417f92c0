// Package memproc acquires the DRAM-contiguous buffer every other
// subsystem operates on, either from a reserved hugepage pool or, failing
// that, by draining the kernel's buddy allocator until it is forced to
// hand back a physically contiguous block.
package memproc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"ramble/internal/align"
	"ramble/internal/diag"
	"ramble/internal/dram"
	"ramble/internal/memmap"
)

const (
	hugePage2MBits = 21
	hugePage2MB    = 1 << hugePage2MBits
	hugePage1GB    = hugePage2MB << 9

	scratchSlack = 1 << 20 // 1 MiB kept unmapped so the drain never deadlocks the host
)

func mapEager(size int, extraFlags int) ([]byte, error) {
	flags := unix.MAP_ANONYMOUS | unix.MAP_PRIVATE | unix.MAP_POPULATE | extraFlags
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, dram.NewError(dram.EnvUnavailable, fmt.Sprintf("mmap %d bytes (flags=%#x)", size, flags), err)
	}
	return buf, nil
}

func newMemMap(buf []byte, cfg *dram.Config) *memmap.MemMap {
	base := uintptr(unsafe.Pointer(&buf[0]))
	return memmap.NewWithRelease(base, len(buf), cfg, func() error {
		return unix.Munmap(buf)
	})
}

// Acquire2MHugepage requests a 2 MiB-backed, pre-faulted anonymous mapping.
// It returns EnvUnavailable if the kernel has no 2 MiB hugepages reserved.
func Acquire2MHugepage(cfg *dram.Config) (*memmap.MemMap, error) {
	buf, err := mapEager(hugePage2MB, unix.MAP_HUGETLB|unix.MAP_HUGE_2MB)
	if err != nil {
		return nil, err
	}
	if err := diag.CheckContiguity(buf); err != nil {
		_ = unix.Munmap(buf)
		return nil, err
	}
	return newMemMap(buf, cfg), nil
}

// Acquire1GHugepage is identical to Acquire2MHugepage but for 1 GiB
// hugepages.
func Acquire1GHugepage(cfg *dram.Config) (*memmap.MemMap, error) {
	buf, err := mapEager(hugePage1GB, unix.MAP_HUGETLB|unix.MAP_HUGE_1GB)
	if err != nil {
		return nil, err
	}
	if err := diag.CheckContiguity(buf); err != nil {
		_ = unix.Munmap(buf)
		return nil, err
	}
	return newMemMap(buf, cfg), nil
}

// AcquireBuddyDrain falls back to forcing the kernel's buddy allocator to
// release a fresh 2 MiB block on systems without hugepages reserved. It
// reads current free-byte counts in the top two buddy orders (diag.FreeBytesTopOrders),
// drains all but 1 MiB of that via a populated anonymous mapping, drains
// exactly 2 MiB more (forcing release of the next-highest 2 MiB block),
// then requests a final 2 MiB mapping — the block just released, and
// therefore contiguous with high probability. The two scratch mappings are
// unmapped before returning; only the final mapping is kept. This strategy
// requires root-equivalent privilege to reliably dominate system memory.
func AcquireBuddyDrain(cfg *dram.Config) (*memmap.MemMap, error) {
	free, err := diag.FreeBytesTopOrders()
	if err != nil {
		return nil, dram.NewError(dram.EnvUnavailable, "buddy allocator statistics unreadable", err)
	}
	if free <= scratchSlack {
		return nil, dram.NewError(dram.EnvUnavailable, fmt.Sprintf("only %d free bytes reported in top buddy orders", free), nil)
	}

	pageSize := unix.Getpagesize()
	drainSize := align.Down(free-scratchSlack, pageSize)
	scratch, err := mapEager(drainSize, 0)
	if err != nil {
		return nil, err
	}
	more, err := mapEager(hugePage2MB, 0)
	if err != nil {
		_ = unix.Munmap(scratch)
		return nil, err
	}
	attack, err := mapEager(hugePage2MB, 0)
	if err != nil {
		_ = unix.Munmap(scratch)
		_ = unix.Munmap(more)
		return nil, err
	}

	_ = unix.Munmap(scratch)
	_ = unix.Munmap(more)

	if err := diag.CheckContiguity(attack); err != nil {
		_ = unix.Munmap(attack)
		return nil, err
	}

	// MADV_HUGEPAGE asks khugepaged to back the drained block with a
	// transparent hugepage, matching the contiguity guarantee
	// Acquire2MHugepage gets from MAP_HUGETLB directly. MADV_DONTFORK keeps
	// a forked child (internal/exploit's page-cache grooming step may fork)
	// from COW-duplicating the mapping, which would hand the child a
	// different physical block than the one just templated.
	if err := unix.Madvise(attack, unix.MADV_HUGEPAGE); err != nil {
		_ = unix.Munmap(attack)
		return nil, dram.NewError(dram.EnvUnavailable, "madvise(MADV_HUGEPAGE) on drained block", err)
	}
	if err := unix.Madvise(attack, unix.MADV_DONTFORK); err != nil {
		_ = unix.Munmap(attack)
		return nil, dram.NewError(dram.EnvUnavailable, "madvise(MADV_DONTFORK) on drained block", err)
	}

	return newMemMap(attack, cfg), nil
}
