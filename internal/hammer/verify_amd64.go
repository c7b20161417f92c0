//go:build amd64

package hammer

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"ramble/internal/hammer/asm"
)

// scanWindow bounds how many bytes of a compiled leaf function VerifyCodegen
// will disassemble looking for the expected opcode; our asm primitives are a
// handful of instructions long, so this is generous headroom, not a tight
// fit to today's encoding.
const scanWindow = 64

// VerifyCodegen disassembles the compiled internal/hammer/asm primitives and
// confirms the machine code actually contains the CLFLUSH and MFENCE
// opcodes the hammer loop depends on, turning "the compiler must not
// reorder or elide these" from an assumption into a runtime assertion
// backed by a real x86 decoder (golang.org/x/arch/x86/x86asm). Calibrate
// calls it before running so a bad codegen assumption fails loudly instead
// of producing a silently wrong reads-per-refresh count.
func VerifyCodegen() error {
	if err := containsOpcode(asm.Clflush, x86asm.CLFLUSH, "Clflush"); err != nil {
		return err
	}
	if err := containsOpcode(asm.Mfence, x86asm.MFENCE, "Mfence"); err != nil {
		return err
	}
	return nil
}

func containsOpcode(fn any, want x86asm.Op, name string) error {
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return fmt.Errorf("hammer: no runtime.Func for %s", name)
	}
	code := unsafe.Slice((*byte)(unsafe.Pointer(pc)), scanWindow)

	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			break
		}
		if inst.Op == want {
			return nil
		}
		off += inst.Len
	}
	return fmt.Errorf("hammer: %s: expected %v opcode not found in the first %d bytes of compiled code", name, want, scanWindow)
}
