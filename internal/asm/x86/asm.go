package x86

import (
	"fmt"

	"github.com/tinyrange/jitgen/internal/asm"
)

// Assembler encodes i386 instructions into an asm.Context. Operand and
// symbol errors are reported before any byte of the instruction is written.
type Assembler struct {
	ctx asm.Context
}

// New returns an assembler emitting into ctx.
func New(ctx asm.Context) *Assembler {
	return &Assembler{ctx: ctx}
}

// NewSession is a convenience that wraps mem (whose first byte lives at
// base) in a fresh session and returns it together with an assembler for it.
func NewSession(mem []byte, base uint32, opts ...asm.SessionOption) (*asm.Session, *Assembler) {
	s := asm.NewSession(asm.NewCodeBuffer(mem, base), opts...)
	return s, New(s)
}

// Context returns the context the assembler emits into.
func (a *Assembler) Context() asm.Context { return a.ctx }

func (a *Assembler) emit(code []byte, err error) error {
	if err != nil {
		return err
	}
	return a.ctx.EmitBytes(code)
}

// NewLabel allocates a label in the underlying context.
func (a *Assembler) NewLabel() asm.Label { return a.ctx.NewLabel() }

// DefineLabel binds l to the current position.
func (a *Assembler) DefineLabel(l asm.Label) error { return a.ctx.DefineLabel(l) }

// Mov copies src into dst. Supported forms are reg<-imm, reg<-reg,
// reg<-mem, reg<-symbol address, mem<-reg and mem<-imm.
func (a *Assembler) Mov(dst, src Operand) error {
	switch d := dst.(type) {
	case Reg:
		if err := checkReg(d); err != nil {
			return err
		}
		switch s := src.(type) {
		case Imm:
			v, err := s.word()
			if err != nil {
				return err
			}
			return a.ctx.EmitBytes(encodeMovRegImm(d, v))
		case Reg:
			if err := checkReg(s); err != nil {
				return err
			}
			return a.ctx.EmitBytes(encodeMovRegReg(d, s))
		case Mem:
			return a.emit(encodeLoad(d, s, Width32))
		case Symbol:
			addr, err := a.ctx.Resolve(string(s))
			if err != nil {
				return fmt.Errorf("mov %s, %s: %w", d, s, err)
			}
			return a.ctx.EmitBytes(encodeMovRegImm(d, addr))
		}
	case Mem:
		switch s := src.(type) {
		case Reg:
			if err := checkReg(s); err != nil {
				return err
			}
			return a.emit(encodeStore(s, d, Width32))
		case Imm:
			v, err := s.word()
			if err != nil {
				return err
			}
			m, err := encodeMemory(extMovImm, d)
			if err != nil {
				return err
			}
			code := append([]byte{opMovRMImm}, m...)
			return a.ctx.EmitBytes(append(code, imm32(v)...))
		}
	}
	return fmt.Errorf("%w: mov %v, %v", asm.ErrUnsupportedOperand, dst, src)
}

// Load reads width bits from [base+disp] into dst. Width 16 is emitted with
// the operand-size prefix and leaves the upper half of dst unchanged.
func (a *Assembler) Load(dst, base Reg, disp int32, width Width) error {
	if err := checkReg(dst); err != nil {
		return err
	}
	return a.emit(encodeLoad(dst, At(base, disp), width))
}

// LoadSignExtend reads a byte or word from [base+disp] and sign-extends it
// into dst. Width 32 is a plain Load.
func (a *Assembler) LoadSignExtend(dst, base Reg, disp int32, width Width) error {
	if width == Width32 {
		return a.Load(dst, base, disp, width)
	}
	if err := checkReg(dst); err != nil {
		return err
	}
	return a.emit(encodeLoadExtend(opMovSX8, dst, At(base, disp), width))
}

// LoadZeroExtend reads a byte or word from [base+disp] and zero-extends it
// into dst. Width 32 is a plain Load.
func (a *Assembler) LoadZeroExtend(dst, base Reg, disp int32, width Width) error {
	if width == Width32 {
		return a.Load(dst, base, disp, width)
	}
	if err := checkReg(dst); err != nil {
		return err
	}
	return a.emit(encodeLoadExtend(opMovZX8, dst, At(base, disp), width))
}

// Store writes the low width bits of src to [base+disp].
func (a *Assembler) Store(src, base Reg, disp int32, width Width) error {
	if err := checkReg(src); err != nil {
		return err
	}
	return a.emit(encodeStore(src, At(base, disp), width))
}

// LoadPC emits call +0; pop dst, leaving the address of the pop in dst.
func (a *Assembler) LoadPC(dst Reg) error {
	if err := checkReg(dst); err != nil {
		return err
	}
	code := append([]byte{opCallRel32}, imm32(0)...)
	return a.ctx.EmitBytes(append(code, opPopReg+byte(dst)))
}

// Push pushes a register, a 32-bit immediate, a memory word or the address
// of a symbol.
func (a *Assembler) Push(src Operand) error {
	switch s := src.(type) {
	case Reg:
		if err := checkReg(s); err != nil {
			return err
		}
		return a.ctx.EmitBytes([]byte{opPushReg + byte(s)})
	case Imm:
		v, err := s.word()
		if err != nil {
			return err
		}
		return a.ctx.EmitBytes(append([]byte{opPushImm32}, imm32(v)...))
	case Mem:
		m, err := encodeMemory(extPushRM, s)
		if err != nil {
			return err
		}
		return a.ctx.EmitBytes(append([]byte{opGroup5}, m...))
	case Symbol:
		addr, err := a.ctx.Resolve(string(s))
		if err != nil {
			return fmt.Errorf("push %s: %w", s, err)
		}
		return a.ctx.EmitBytes(append([]byte{opPushImm32}, imm32(addr)...))
	}
	return fmt.Errorf("%w: push %v", asm.ErrUnsupportedOperand, src)
}

// Pop pops into a register or memory word.
func (a *Assembler) Pop(dst Operand) error {
	switch d := dst.(type) {
	case Reg:
		if err := checkReg(d); err != nil {
			return err
		}
		return a.ctx.EmitBytes([]byte{opPopReg + byte(d)})
	case Mem:
		m, err := encodeMemory(extPopRM, d)
		if err != nil {
			return err
		}
		return a.ctx.EmitBytes(append([]byte{opPopRM}, m...))
	}
	return fmt.Errorf("%w: pop %v", asm.ErrUnsupportedOperand, dst)
}

// Jmp emits a short jump to l. The displacement is filled in by Link.
func (a *Assembler) Jmp(l asm.Label) error {
	return a.jumpShort(opJmpShort, l)
}

// Jcc emits a short conditional jump to l.
func (a *Assembler) Jcc(cond Cond, l asm.Label) error {
	if cond > CondG {
		return fmt.Errorf("%w: condition code %#x", asm.ErrUnsupportedOperand, uint8(cond))
	}
	return a.jumpShort(opJccShort+byte(cond), l)
}

func (a *Assembler) jumpShort(opcode byte, l asm.Label) error {
	return a.ctx.ReferenceLabel(l, opcode)
}

// Call transfers control to an absolute address (Imm), a register, a memory
// word or a named symbol. Immediate and symbol targets are encoded relative
// to the address of the next instruction.
func (a *Assembler) Call(target Operand) error {
	switch t := target.(type) {
	case Imm:
		v, err := t.word()
		if err != nil {
			return err
		}
		return a.callAbs(v)
	case Reg:
		if err := checkReg(t); err != nil {
			return err
		}
		return a.ctx.EmitBytes([]byte{opGroup5, modrm(modReg, extCallRM, byte(t))})
	case Mem:
		m, err := encodeMemory(extCallRM, t)
		if err != nil {
			return err
		}
		return a.ctx.EmitBytes(append([]byte{opGroup5}, m...))
	case Symbol:
		addr, err := a.ctx.Resolve(string(t))
		if err != nil {
			return fmt.Errorf("call %s: %w", t, err)
		}
		return a.callAbs(addr)
	}
	return fmt.Errorf("%w: call %v", asm.ErrUnsupportedOperand, target)
}

// CallRel emits call with a raw displacement from the next instruction.
func (a *Assembler) CallRel(rel int32) error {
	return a.ctx.EmitBytes(append([]byte{opCallRel32}, imm32(uint32(rel))...))
}

func (a *Assembler) callAbs(target uint32) error {
	next := a.ctx.Address() + 5
	return a.CallRel(int32(target - next))
}

// Ret returns to the caller.
func (a *Assembler) Ret() error {
	return a.ctx.EmitBytes([]byte{opRet})
}

func (a *Assembler) Add(dst, src Operand) error { return a.emit(encodeALU(aluAdd, dst, src)) }
func (a *Assembler) Or(dst, src Operand) error  { return a.emit(encodeALU(aluOr, dst, src)) }
func (a *Assembler) Adc(dst, src Operand) error { return a.emit(encodeALU(aluAdc, dst, src)) }
func (a *Assembler) Sbb(dst, src Operand) error { return a.emit(encodeALU(aluSbb, dst, src)) }
func (a *Assembler) And(dst, src Operand) error { return a.emit(encodeALU(aluAnd, dst, src)) }
func (a *Assembler) Sub(dst, src Operand) error { return a.emit(encodeALU(aluSub, dst, src)) }
func (a *Assembler) Xor(dst, src Operand) error { return a.emit(encodeALU(aluXor, dst, src)) }
func (a *Assembler) Cmp(dst, src Operand) error { return a.emit(encodeALU(aluCmp, dst, src)) }

// Test sets flags from dst & src. EAX against an immediate uses the short
// accumulator form.
func (a *Assembler) Test(dst, src Operand) error { return a.emit(encodeTest(dst, src)) }

func (a *Assembler) Neg(dst Operand) error { return a.emit(encodeGroup3(extNeg, dst)) }
func (a *Assembler) Not(dst Operand) error { return a.emit(encodeGroup3(extNot, dst)) }

// MulLong computes the unsigned 64-bit product EDX:EAX = EAX * src. The
// hardware fixes the first factor in EAX, so dst must be EAX.
func (a *Assembler) MulLong(dst Reg, src Operand) error {
	return a.mulLong("mul", extMul, dst, src)
}

// IMulLong is the signed form of MulLong.
func (a *Assembler) IMulLong(dst Reg, src Operand) error {
	return a.mulLong("imul", extIMul, dst, src)
}

func (a *Assembler) mulLong(name string, ext byte, dst Reg, src Operand) error {
	if dst != EAX {
		return fmt.Errorf("%w: %s needs its first operand in eax, got %s", asm.ErrUnsupportedOperand, name, dst)
	}
	return a.emit(encodeGroup3(ext, src))
}

// IMul computes the truncated signed product dst = dst * src.
func (a *Assembler) IMul(dst Reg, src Operand) error { return a.emit(encodeIMul(dst, src)) }

// Shift and rotate by an immediate count or by ECX.
func (a *Assembler) Shl(dst, count Operand) error { return a.emit(encodeShift(shiftShl, dst, count)) }
func (a *Assembler) Shr(dst, count Operand) error { return a.emit(encodeShift(shiftShr, dst, count)) }
func (a *Assembler) Sar(dst, count Operand) error { return a.emit(encodeShift(shiftSar, dst, count)) }
func (a *Assembler) Rol(dst, count Operand) error { return a.emit(encodeShift(shiftRol, dst, count)) }
func (a *Assembler) Ror(dst, count Operand) error { return a.emit(encodeShift(shiftRor, dst, count)) }
