package x86

import "github.com/tinyrange/jitgen/internal/asm"

type fragmentFunc func(a *Assembler) error

func (f fragmentFunc) Emit(ctx asm.Context) error { return f(New(ctx)) }

// Binary wraps a two-operand Assembler method as a fragment.
func Binary(op func(a *Assembler, dst, src Operand) error, dst, src Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return op(a, dst, src) })
}

func Mov(dst, src Operand) asm.Fragment {
	return Binary((*Assembler).Mov, dst, src)
}

func Load(dst, base Reg, disp int32, width Width) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Load(dst, base, disp, width) })
}

func LoadSignExtend(dst, base Reg, disp int32, width Width) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.LoadSignExtend(dst, base, disp, width) })
}

func LoadZeroExtend(dst, base Reg, disp int32, width Width) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.LoadZeroExtend(dst, base, disp, width) })
}

func Store(src, base Reg, disp int32, width Width) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Store(src, base, disp, width) })
}

func LoadPC(dst Reg) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.LoadPC(dst) })
}

func Push(src Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Push(src) })
}

func Pop(dst Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Pop(dst) })
}

// Jump jumps to the named label.
func Jump(label string) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Jmp(a.ctx.NamedLabel(label)) })
}

// JumpIf jumps to the named label when cond holds.
func JumpIf(cond Cond, label string) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Jcc(cond, a.ctx.NamedLabel(label)) })
}

func Call(target Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Call(target) })
}

func Ret() asm.Fragment {
	return fragmentFunc((*Assembler).Ret)
}

func Add(dst, src Operand) asm.Fragment  { return Binary((*Assembler).Add, dst, src) }
func Or(dst, src Operand) asm.Fragment   { return Binary((*Assembler).Or, dst, src) }
func Adc(dst, src Operand) asm.Fragment  { return Binary((*Assembler).Adc, dst, src) }
func Sbb(dst, src Operand) asm.Fragment  { return Binary((*Assembler).Sbb, dst, src) }
func And(dst, src Operand) asm.Fragment  { return Binary((*Assembler).And, dst, src) }
func Sub(dst, src Operand) asm.Fragment  { return Binary((*Assembler).Sub, dst, src) }
func Xor(dst, src Operand) asm.Fragment  { return Binary((*Assembler).Xor, dst, src) }
func Cmp(dst, src Operand) asm.Fragment  { return Binary((*Assembler).Cmp, dst, src) }
func Test(dst, src Operand) asm.Fragment { return Binary((*Assembler).Test, dst, src) }
func Shl(dst, count Operand) asm.Fragment {
	return Binary((*Assembler).Shl, dst, count)
}
func Shr(dst, count Operand) asm.Fragment {
	return Binary((*Assembler).Shr, dst, count)
}
func Sar(dst, count Operand) asm.Fragment {
	return Binary((*Assembler).Sar, dst, count)
}
func Rol(dst, count Operand) asm.Fragment {
	return Binary((*Assembler).Rol, dst, count)
}
func Ror(dst, count Operand) asm.Fragment {
	return Binary((*Assembler).Ror, dst, count)
}

func Neg(dst Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Neg(dst) })
}

func Not(dst Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.Not(dst) })
}

func MulLong(dst Reg, src Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.MulLong(dst, src) })
}

func IMulLong(dst Reg, src Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.IMulLong(dst, src) })
}

func IMul(dst Reg, src Operand) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.IMul(dst, src) })
}

func Prolog() asm.Fragment { return fragmentFunc((*Assembler).Prolog) }

func Epilog() asm.Fragment { return fragmentFunc((*Assembler).Epilog) }

func PopArgs(n int) asm.Fragment {
	return fragmentFunc(func(a *Assembler) error { return a.PopArgs(n) })
}
