package x86

import (
	"fmt"
	"math"
	"strings"

	"github.com/tinyrange/jitgen/internal/asm"
)

// Reg is a 32-bit general-purpose register, identified by its 3-bit
// hardware encoding.
type Reg uint8

const (
	EAX Reg = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

var regNames = [...]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

// NewReg validates a raw register id.
func NewReg(id int) (Reg, error) {
	if id < 0 || id >= len(regNames) {
		return 0, fmt.Errorf("%w: register id %d", asm.ErrUnsupportedOperand, id)
	}
	return Reg(id), nil
}

// ParseReg maps a register name such as "eax" to its Reg.
func ParseReg(name string) (Reg, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for idx, n := range regNames {
		if n == name {
			return Reg(idx), nil
		}
	}
	return 0, fmt.Errorf("%w: register %q", asm.ErrUnsupportedOperand, name)
}

func (r Reg) valid() bool { return int(r) < len(regNames) }

func (r Reg) String() string {
	if !r.valid() {
		return fmt.Sprintf("reg(%d)", uint8(r))
	}
	return regNames[r]
}

// Width is an operand width in bits.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
)

// Operand is one of Reg, Imm, Mem or Symbol.
type Operand interface {
	isOperand()
	String() string
}

// Imm is a 32-bit immediate. Both signed and unsigned 32-bit values are
// accepted; they encode to the same bits.
type Imm int64

// Mem is a register-indirect memory reference [Base+Disp].
type Mem struct {
	Base Reg
	Disp int32
}

// Symbol is a name resolved to an absolute address at emission time.
type Symbol string

func (Reg) isOperand()    {}
func (Imm) isOperand()    {}
func (Mem) isOperand()    {}
func (Symbol) isOperand() {}

var (
	_ Operand = Reg(0)
	_ Operand = Imm(0)
	_ Operand = Mem{}
	_ Operand = Symbol("")
)

// At constructs the memory operand [base+disp].
func At(base Reg, disp int32) Mem {
	return Mem{Base: base, Disp: disp}
}

func (i Imm) String() string {
	if i < 0 {
		return fmt.Sprintf("-%#x", -uint64(i))
	}
	return fmt.Sprintf("%#x", int64(i))
}

func (m Mem) String() string {
	switch {
	case m.Disp == 0:
		return fmt.Sprintf("[%s]", m.Base)
	case m.Disp < 0:
		return fmt.Sprintf("[%s-%#x]", m.Base, -int64(m.Disp))
	default:
		return fmt.Sprintf("[%s+%#x]", m.Base, m.Disp)
	}
}

func (s Symbol) String() string { return "sym:" + string(s) }

// word returns the two's-complement bits of the immediate.
func (i Imm) word() (uint32, error) {
	if i < math.MinInt32 || i > math.MaxUint32 {
		return 0, fmt.Errorf("%w: immediate %s does not fit in 32 bits", asm.ErrUnsupportedOperand, i)
	}
	return uint32(i), nil
}

// Cond is an x86 condition code used by Jcc.
type Cond uint8

const (
	CondO  Cond = 0x0
	CondNO Cond = 0x1
	CondB  Cond = 0x2
	CondAE Cond = 0x3
	CondZ  Cond = 0x4
	CondNZ Cond = 0x5
	CondBE Cond = 0x6
	CondA  Cond = 0x7
	CondS  Cond = 0x8
	CondNS Cond = 0x9
	CondP  Cond = 0xa
	CondNP Cond = 0xb
	CondL  Cond = 0xc
	CondGE Cond = 0xd
	CondLE Cond = 0xe
	CondG  Cond = 0xf

	CondC  = CondB
	CondNC = CondAE
	CondE  = CondZ
	CondNE = CondNZ
)

var condNames = map[string]Cond{
	"o": CondO, "no": CondNO, "b": CondB, "c": CondC, "ae": CondAE, "nc": CondNC,
	"z": CondZ, "e": CondE, "nz": CondNZ, "ne": CondNE, "be": CondBE, "a": CondA,
	"s": CondS, "ns": CondNS, "p": CondP, "np": CondNP, "l": CondL, "ge": CondGE,
	"le": CondLE, "g": CondG,
}

// ParseCond maps a condition suffix such as "ne" or "ge" to its Cond.
func ParseCond(name string) (Cond, error) {
	c, ok := condNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: condition %q", asm.ErrUnsupportedOperand, name)
	}
	return c, nil
}
