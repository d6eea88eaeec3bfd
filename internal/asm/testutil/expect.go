package testutil

import (
	"fmt"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// Expectation describes a single decoded instruction.
type Expectation struct {
	Name string
	Op   x86asm.Op
	// Args lists the leading operands to compare; nil entries are skipped.
	// Memory operands are compared by base, index and the 32-bit
	// displacement; the decoder zero-extends negative disp32 values.
	Args []x86asm.Arg
	// Len is the expected encoded length; zero skips the check.
	Len int
}

func argEqual(got, want x86asm.Arg) bool {
	if wm, ok := want.(x86asm.Mem); ok {
		gm, ok := got.(x86asm.Mem)
		return ok && gm.Base == wm.Base && gm.Index == wm.Index && int32(gm.Disp) == int32(wm.Disp)
	}
	return got == want
}

func (e Expectation) match(inst x86asm.Inst) error {
	if inst.Op != e.Op {
		return fmt.Errorf("op=%v, want %v", inst.Op, e.Op)
	}
	for idx, want := range e.Args {
		if want == nil {
			continue
		}
		if idx >= len(inst.Args) {
			return fmt.Errorf("arg %d missing, want %v", idx, want)
		}
		if !argEqual(inst.Args[idx], want) {
			return fmt.Errorf("arg %d=%v, want %v", idx, inst.Args[idx], want)
		}
	}
	if e.Len != 0 && inst.Len != e.Len {
		return fmt.Errorf("len=%d, want %d", inst.Len, e.Len)
	}
	return nil
}

// VerifyExpectations checks decoded instructions against expect, in order.
// Extra instructions after all expectations are ignored.
func VerifyExpectations(t *testing.T, insts []x86asm.Inst, expect []Expectation) {
	t.Helper()
	if len(insts) < len(expect) {
		t.Fatalf("decoded %d instructions, want at least %d", len(insts), len(expect))
	}
	for idx, exp := range expect {
		if err := exp.match(insts[idx]); err != nil {
			t.Fatalf("instruction %q mismatch at index %d: %v\ninst: %v", exp.Name, idx, err, insts[idx])
		}
	}
}
