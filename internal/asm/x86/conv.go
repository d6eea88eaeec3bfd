package x86

import (
	"fmt"

	"github.com/tinyrange/jitgen/internal/asm"
)

// Prolog saves the caller's frame pointer and points EBP at the new frame:
// push ebp; mov ebp, esp. Stack arguments are then at [ebp+8], [ebp+12], ...
// Both instructions are emitted together or not at all, as with Epilog.
func (a *Assembler) Prolog() error {
	return a.ctx.EmitBytes(append([]byte{opPushReg + byte(EBP)}, encodeMovRegReg(EBP, ESP)...))
}

// Epilog restores the caller's frame pointer and returns: pop ebp; ret.
func (a *Assembler) Epilog() error {
	return a.ctx.EmitBytes([]byte{opPopReg + byte(EBP), opRet})
}

// PopArgs discards n 32-bit stack arguments pushed before a call.
func (a *Assembler) PopArgs(n int) error {
	if n < 0 || n > (1<<29) {
		return fmt.Errorf("%w: argument count %d", asm.ErrUnsupportedOperand, n)
	}
	if n == 0 {
		return nil
	}
	return a.Add(ESP, Imm(4*n))
}

// PatchHandle is the buffer offset of a 32-bit immediate emitted by
// MovMutable.
type PatchHandle int

// MovMutable is Mov(dst, v) that always uses the 4-byte immediate form and
// returns a handle to that immediate for PatchImmediate.
func (a *Assembler) MovMutable(dst Reg, v Imm) (PatchHandle, error) {
	if err := checkReg(dst); err != nil {
		return 0, err
	}
	word, err := v.word()
	if err != nil {
		return 0, err
	}
	pos := a.ctx.Position()
	if err := a.ctx.EmitBytes(encodeMovRegImm(dst, word)); err != nil {
		return 0, err
	}
	return PatchHandle(pos + 1), nil
}

// PatchImmediate rewrites the immediate behind h in place. It does not
// re-run Link and is safe to use on code that has already executed, as long
// as no thread is executing it concurrently.
func (a *Assembler) PatchImmediate(h PatchHandle, v Imm) error {
	word, err := v.word()
	if err != nil {
		return err
	}
	if err := a.ctx.PatchWord32(int(h), word); err != nil {
		return fmt.Errorf("patch immediate at %d: %w", int(h), err)
	}
	return nil
}
