// Package memmap owns the raw procured buffer and indexes it by DRAM row.
// Raw-pointer arithmetic is confined to this package, internal/hammer (and
// its asm shim), internal/memproc, internal/diag and internal/exploit, the
// set cmd/unsafeaudit allows; every other package sees only checked byte
// access, DRAM coordinates, and DramRange values.
package memmap

import (
	"unsafe"

	"ramble/internal/dram"
	"ramble/internal/hammer/asm"
)

// MemMap owns a raw buffer and a row-key -> ranges index built once at
// construction. It is released by Close, which unmaps the backing buffer.
type MemMap struct {
	base uintptr
	len  int

	rows map[dram.RowKey][]dram.DramRange

	release func() error
}

// New partitions [0,len) into DramRanges of size min(remaining,
// cfg.ContiguousDramAddr), grouping them by their row-aligned projection. A
// range whose start's row-aligned coordinate doesn't match a key it was
// computed under is never produced by construction, since the key is always
// derived from the range's own Start.
func New(base uintptr, length int, cfg *dram.Config) *MemMap {
	mm := &MemMap{
		base: base,
		len:  length,
		rows: make(map[dram.RowKey][]dram.DramRange),
	}
	mm.build(cfg)
	return mm
}

// NewWithRelease is like New but remembers a release callback invoked by
// Close, used by internal/memproc to unmap the buffer it procured.
func NewWithRelease(base uintptr, length int, cfg *dram.Config, release func() error) *MemMap {
	mm := New(base, length, cfg)
	mm.release = release
	return mm
}

func (m *MemMap) build(cfg *dram.Config) {
	quantum := cfg.ContiguousDramAddr
	if quantum <= 0 {
		quantum = m.len
	}
	for off := 0; off < m.len; {
		remaining := m.len - off
		sz := quantum
		if remaining < sz {
			sz = remaining
		}
		start := cfg.AddrAt(dram.PhysAddr(off))
		rng := dram.DramRange{Start: start, Bytes: sz}
		key := start.RowAligned().Key()
		m.rows[key] = append(m.rows[key], rng)
		off += sz
	}
}

// Base returns the buffer's starting virtual address.
func (m *MemMap) Base() uintptr { return m.base }

// Len returns the buffer's length in bytes.
func (m *MemMap) Len() int { return m.len }

// SameRowRanges returns every range sharing d's row-aligned key.
func (m *MemMap) SameRowRanges(d dram.DramAddr) []dram.DramRange {
	return m.rows[d.RowAligned().Key()]
}

// Rows returns every row key present in the buffer, for callers that need
// to walk the whole map (e.g. the templating engine).
func (m *MemMap) Rows() []dram.RowKey {
	keys := make([]dram.RowKey, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	return keys
}

// Offset returns a pointer to byte n of the buffer.
func (m *MemMap) Offset(n int) unsafe.Pointer {
	if n < 0 || n > m.len {
		panic("memmap: offset out of bounds")
	}
	return unsafe.Pointer(m.base + uintptr(n))
}

// Bytes returns the buffer as a byte slice, for callers (diagnostics,
// contiguity checks) that need a bounds-checked view rather than raw
// pointer arithmetic. The slice aliases the buffer; it is only valid for
// the MemMap's lifetime.
func (m *MemMap) Bytes() []byte {
	if m.len == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(m.Offset(0)), m.len)
}

// DramToVirt returns the buffer-relative virtual address of d's byte,
// honoring d.Byte but not d.Bit (bit addressing is the caller's concern,
// since it operates on the byte value returned here).
func (m *MemMap) DramToVirt(d dram.DramAddr, cfg *dram.Config) unsafe.Pointer {
	phys := cfg.Arch.DramToPhys(d)
	off := int(phys) + int(d.Byte)
	return m.Offset(off)
}

// AtDram returns a pointer to the byte housing d's bit.
func (m *MemMap) AtDram(d dram.DramAddr, cfg *dram.Config) *byte {
	return (*byte)(m.DramToVirt(d, cfg))
}

// ReadDramByte reads the byte at DRAM coordinate d.
func (m *MemMap) ReadDramByte(d dram.DramAddr, cfg *dram.Config) byte {
	return *m.AtDram(d, cfg)
}

// WriteDramByte writes v to the byte at DRAM coordinate d.
func (m *MemMap) WriteDramByte(d dram.DramAddr, v byte, cfg *dram.Config) {
	*m.AtDram(d, cfg) = v
}

// ReadByte reads the byte at offset n.
func (m *MemMap) ReadByte(n int) byte {
	return *(*byte)(m.Offset(n))
}

// WriteByte writes v to the byte at offset n.
func (m *MemMap) WriteByte(n int, v byte) {
	*(*byte)(m.Offset(n)) = v
}

// FillRange writes v to every byte in rng, using cfg's architecture map to
// locate the bytes, then issues a full memory fence so the pattern is
// globally visible before any subsequent hammer loop begins.
func (m *MemMap) FillRange(rng dram.DramRange, v byte, cfg *dram.Config) {
	start := int(cfg.Arch.DramToPhys(rng.Start))
	for i := 0; i < rng.Bytes; i++ {
		m.WriteByte(start+i, v)
	}
	asm.Mfence()
}

// FillRanges fills every range in rngs with v.
func (m *MemMap) FillRanges(rngs []dram.DramRange, v byte, cfg *dram.Config) {
	for _, rng := range rngs {
		m.FillRange(rng, v, cfg)
	}
}

// Close releases the underlying buffer, if this MemMap owns one.
func (m *MemMap) Close() error {
	if m.release == nil {
		return nil
	}
	err := m.release()
	m.release = nil
	return err
}
