package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyrange/jitgen/internal/asm"
	"github.com/tinyrange/jitgen/internal/asm/x86"
)

type opBuilder func(args []string) (asm.Fragment, error)

func arity(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: got %d operands, want %d", ErrInvalidOperand, len(args), n)
	}
	return nil
}

func nullary(frag func() asm.Fragment) opBuilder {
	return func(args []string) (asm.Fragment, error) {
		if err := arity(args, 0); err != nil {
			return nil, err
		}
		return frag(), nil
	}
}

func unary(frag func(x86.Operand) asm.Fragment) opBuilder {
	return func(args []string) (asm.Fragment, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		op, err := parseOperand(args[0])
		if err != nil {
			return nil, err
		}
		return frag(op), nil
	}
}

func binary(frag func(dst, src x86.Operand) asm.Fragment) opBuilder {
	return func(args []string) (asm.Fragment, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		dst, err := parseOperand(args[0])
		if err != nil {
			return nil, err
		}
		src, err := parseOperand(args[1])
		if err != nil {
			return nil, err
		}
		return frag(dst, src), nil
	}
}

func regFirst(frag func(x86.Reg, x86.Operand) asm.Fragment) opBuilder {
	return func(args []string) (asm.Fragment, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		dst, err := x86.ParseReg(args[0])
		if err != nil {
			return nil, err
		}
		src, err := parseOperand(args[1])
		if err != nil {
			return nil, err
		}
		return frag(dst, src), nil
	}
}

// memory builds load and store steps written as reg, [base+disp], width.
func memory(frag func(r, base x86.Reg, disp int32, width x86.Width) asm.Fragment) opBuilder {
	return func(args []string) (asm.Fragment, error) {
		if err := arity(args, 3); err != nil {
			return nil, err
		}
		r, err := x86.ParseReg(args[0])
		if err != nil {
			return nil, err
		}
		m, err := parseMem(strings.TrimSpace(args[1]))
		if err != nil {
			return nil, err
		}
		width, err := parseWidth(args[2])
		if err != nil {
			return nil, err
		}
		return frag(r, m.Base, m.Disp, width), nil
	}
}

func jump(args []string) (asm.Fragment, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	label, err := parseLabel(args[0])
	if err != nil {
		return nil, err
	}
	return x86.Jump(label), nil
}

func jumpIf(cond x86.Cond) opBuilder {
	return func(args []string) (asm.Fragment, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		label, err := parseLabel(args[0])
		if err != nil {
			return nil, err
		}
		return x86.JumpIf(cond, label), nil
	}
}

func loadPC(args []string) (asm.Fragment, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	r, err := x86.ParseReg(args[0])
	if err != nil {
		return nil, err
	}
	return x86.LoadPC(r), nil
}

func popArgs(args []string) (asm.Fragment, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: argument count %q", ErrInvalidOperand, args[0])
	}
	return x86.PopArgs(n), nil
}

var ops = map[string]opBuilder{
	"mov":       binary(x86.Mov),
	"load":      memory(x86.Load),
	"load_sx":   memory(x86.LoadSignExtend),
	"load_zx":   memory(x86.LoadZeroExtend),
	"store":     memory(x86.Store),
	"loadpc":    loadPC,
	"push":      unary(x86.Push),
	"pop":       unary(x86.Pop),
	"call":      unary(x86.Call),
	"ret":       nullary(x86.Ret),
	"jmp":       jump,
	"add":       binary(x86.Add),
	"or":        binary(x86.Or),
	"adc":       binary(x86.Adc),
	"sbb":       binary(x86.Sbb),
	"and":       binary(x86.And),
	"sub":       binary(x86.Sub),
	"xor":       binary(x86.Xor),
	"cmp":       binary(x86.Cmp),
	"test":      binary(x86.Test),
	"shl":       binary(x86.Shl),
	"shr":       binary(x86.Shr),
	"sar":       binary(x86.Sar),
	"rol":       binary(x86.Rol),
	"ror":       binary(x86.Ror),
	"neg":       unary(x86.Neg),
	"not":       unary(x86.Not),
	"mul_long":  regFirst(x86.MulLong),
	"imul_long": regFirst(x86.IMulLong),
	"imul":      regFirst(x86.IMul),
	"prolog":    nullary(x86.Prolog),
	"epilog":    nullary(x86.Epilog),
	"pop_args":  popArgs,
}

// lookupOp resolves an op name. Conditional jumps are "j" followed by a
// condition suffix, as in jne or jge.
func lookupOp(name string) (opBuilder, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if b, ok := ops[name]; ok {
		return b, true
	}
	if suffix, ok := strings.CutPrefix(name, "j"); ok {
		if cond, err := x86.ParseCond(suffix); err == nil {
			return jumpIf(cond), true
		}
	}
	return nil, false
}
