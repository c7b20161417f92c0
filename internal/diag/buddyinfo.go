package diag

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"ramble/internal/dram"
)

// buddyInfoPath is a var, not a const, so tests can point it at a fixture.
var buddyInfoPath = "/proc/buddyinfo"

// topOrders is how many of the highest free-page orders contribute to the
// buddy-drain byte count; the drain strategy only cares about the blocks
// large enough to plausibly yield a contiguous 2 MiB region once coalesced.
const topOrders = 2

// FreeBytesTopOrders sums the free-byte count across every zone's top
// topOrders buddy orders, as published by /proc/buddyinfo: each column i is
// the free-block count at order i, each block holding 2^i pages.
func FreeBytesTopOrders() (int, error) {
	f, err := os.Open(buddyInfoPath)
	if err != nil {
		return 0, dram.NewError(dram.EnvUnavailable, "open "+buddyInfoPath, err)
	}
	defer f.Close()

	pageSize := unix.Getpagesize()
	total := 0

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// "Node 0, zone DMA32 <counts...>" — the first four fields are
		// "Node", "0,", "zone", "DMA32"; the rest are per-order counts.
		if len(fields) < 5 {
			continue
		}
		counts := fields[4:]
		for i := len(counts) - topOrders; i < len(counts); i++ {
			if i < 0 {
				continue
			}
			n, err := strconv.Atoi(counts[i])
			if err != nil {
				continue
			}
			total += n * (1 << i) * pageSize
		}
	}
	if err := sc.Err(); err != nil {
		return 0, dram.NewError(dram.EnvUnavailable, "scan "+buddyInfoPath, err)
	}
	return total, nil
}
