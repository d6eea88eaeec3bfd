package testutil

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// Decode32 decodes code as consecutive 32-bit protected mode instructions.
// It fails the test if any byte sequence is not a valid instruction.
func Decode32(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()
	var insts []x86asm.Inst
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 32)
		if err != nil {
			t.Fatalf("decode at offset %d (% x): %v", off, code[off:], err)
		}
		insts = append(insts, inst)
		off += inst.Len
	}
	return insts
}
