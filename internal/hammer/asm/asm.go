// Package asm provides the three machine primitives the hammering engine
// needs and that no third-party Go library exposes: an unreorderable,
// uneliminable memory load, a cache-line flush, and a full memory fence.
// Go's compiler cannot reorder across or eliminate calls into hand-written
// assembly, which is exactly the guarantee the hammer loop requires — see
// DESIGN.md for why this is implemented in asm rather than imported.
package asm

import "unsafe"

// Load8 reads and returns the byte at addr. Because the read happens inside
// assembly, the Go compiler cannot prove it dead and elide it.
func Load8(addr unsafe.Pointer) byte

// Clflush evicts the cache line containing addr from every level of cache.
func Clflush(addr unsafe.Pointer)

// Mfence issues a full memory fence, ordering all prior loads and stores
// before it against all later ones.
func Mfence()
