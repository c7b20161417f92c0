//go:build !amd64

package asm

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// This file backs non-amd64 builds with the closest portable approximation:
// an atomic load (uneliminable, not reorderable past a fence) in place of a
// raw load, and a compiler/scheduler barrier in place of CLFLUSH, which has
// no portable equivalent outside x86. ramble targets x86_64 Linux only;
// this exists so the package still links elsewhere.

// Load8 reads the byte at addr via an atomic load.
func Load8(addr unsafe.Pointer) byte {
	v := atomic.LoadUint32((*uint32)(unsafe.Pointer(uintptr(addr) &^ 0x3)))
	shift := (uintptr(addr) & 0x3) * 8
	b := byte(v >> shift)
	runtime.KeepAlive(addr)
	return b
}

// Clflush has no portable equivalent; it degrades to a scheduler barrier so
// programs built for diagnostics off x86_64 still link.
func Clflush(addr unsafe.Pointer) {
	runtime.KeepAlive(addr)
}

// Mfence issues the closest portable approximation, a full atomic fence.
func Mfence() {
	var x int32
	atomic.AddInt32(&x, 0)
}
