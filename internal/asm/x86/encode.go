package x86

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tinyrange/jitgen/internal/asm"
)

const (
	modIndirect byte = 0
	modDisp8    byte = 1
	modDisp32   byte = 2
	modReg      byte = 3
)

const (
	prefixOpSize = 0x66

	opMovRegImm  = 0xb8
	opMovRM8R    = 0x88
	opMovRMR     = 0x89
	opMovR8RM    = 0x8a
	opMovRRM     = 0x8b
	opMovRMImm   = 0xc7
	opPushReg    = 0x50
	opPopReg     = 0x58
	opPushImm32  = 0x68
	opPopRM      = 0x8f
	opJccShort   = 0x70
	opJmpShort   = 0xeb
	opCallRel32  = 0xe8
	opRet        = 0xc3
	opALUImm8    = 0x83
	opALUImm32   = 0x81
	opTestEAXImm = 0xa9
	opTestRMR    = 0x85
	opGroup3     = 0xf7
	opGroup5     = 0xff
	opIMulImm8   = 0x6b
	opIMulImm32  = 0x69
	opShift1     = 0xd1
	opShiftCL    = 0xd3
	opShiftImm8  = 0xc1
	opEscape     = 0x0f
	opIMulRRM    = 0xaf
	opMovZX8     = 0xb6
	opMovSX8     = 0xbe
)

// Opcode extensions carried in the reg field of the addressing-mode byte.
const (
	extTest   = 0
	extNot    = 2
	extNeg    = 3
	extMul    = 4
	extIMul   = 5
	extCallRM = 2
	extPushRM = 6
	extPopRM  = 0
	extMovImm = 0
)

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

func fitsInt8(v int32) bool {
	return v >= math.MinInt8 && v <= math.MaxInt8
}

func imm32(v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return buf[:]
}

// encodeMemory returns the addressing-mode byte, optional SIB byte and
// displacement for [base+disp] with reg in the reg/opcode field. The
// displacement uses the shortest form: none for zero, one signed byte for
// [-128,127], four bytes otherwise.
func encodeMemory(reg byte, m Mem) ([]byte, error) {
	if !m.Base.valid() {
		return nil, fmt.Errorf("%w: base register %s", asm.ErrUnsupportedOperand, m.Base)
	}

	rm := byte(m.Base)
	var mod byte
	switch {
	// rm=101 with mod 00 means absolute disp32, so [ebp] needs a zero disp8.
	case m.Disp == 0 && m.Base != EBP:
		mod = modIndirect
	case fitsInt8(m.Disp):
		mod = modDisp8
	default:
		mod = modDisp32
	}

	out := make([]byte, 0, 6)
	out = append(out, modrm(mod, reg, rm))
	// rm=100 selects a SIB byte; scale 1, no index, base esp.
	if m.Base == ESP {
		out = append(out, modrm(0, 4, byte(ESP)))
	}
	switch mod {
	case modDisp8:
		out = append(out, byte(int8(m.Disp)))
	case modDisp32:
		out = append(out, imm32(uint32(m.Disp))...)
	}
	return out, nil
}

// encodeRM encodes a register-direct or memory r/m operand.
func encodeRM(reg byte, op Operand) ([]byte, error) {
	switch v := op.(type) {
	case Reg:
		if !v.valid() {
			return nil, fmt.Errorf("%w: register %s", asm.ErrUnsupportedOperand, v)
		}
		return []byte{modrm(modReg, reg, byte(v))}, nil
	case Mem:
		return encodeMemory(reg, v)
	default:
		return nil, fmt.Errorf("%w: %v is not a register or memory operand", asm.ErrUnsupportedOperand, op)
	}
}

func checkReg(regs ...Reg) error {
	for _, r := range regs {
		if !r.valid() {
			return fmt.Errorf("%w: register %s", asm.ErrUnsupportedOperand, r)
		}
	}
	return nil
}

func encodeMovRegImm(dst Reg, v uint32) []byte {
	out := make([]byte, 0, 5)
	out = append(out, opMovRegImm+byte(dst))
	return append(out, imm32(v)...)
}

func encodeMovRegReg(dst, src Reg) []byte {
	return []byte{opMovRRM, modrm(modReg, byte(dst), byte(src))}
}

// encodeLoad encodes dst <- [base+disp] for widths 8, 16 and 32.
func encodeLoad(dst Reg, mem Mem, width Width) ([]byte, error) {
	var out []byte
	switch width {
	case Width8:
		if dst > EBX {
			return nil, fmt.Errorf("%w: %s has no 8-bit low form", asm.ErrUnsupportedOperand, dst)
		}
		out = append(out, opMovR8RM)
	case Width16:
		out = append(out, prefixOpSize, opMovRRM)
	case Width32:
		out = append(out, opMovRRM)
	default:
		return nil, fmt.Errorf("%w: load width %d", asm.ErrUnsupportedOperand, width)
	}
	m, err := encodeMemory(byte(dst), mem)
	if err != nil {
		return nil, err
	}
	return append(out, m...), nil
}

// encodeLoadExtend encodes movsx/movzx dst, byte/word [base+disp].
func encodeLoadExtend(base byte, dst Reg, mem Mem, width Width) ([]byte, error) {
	var opcode byte
	switch width {
	case Width8:
		opcode = base
	case Width16:
		opcode = base + 1
	default:
		return nil, fmt.Errorf("%w: extending load width %d", asm.ErrUnsupportedOperand, width)
	}
	m, err := encodeMemory(byte(dst), mem)
	if err != nil {
		return nil, err
	}
	return append([]byte{opEscape, opcode}, m...), nil
}

// encodeStore encodes [base+disp] <- src for widths 8, 16 and 32.
func encodeStore(src Reg, mem Mem, width Width) ([]byte, error) {
	var out []byte
	switch width {
	case Width8:
		if src > EBX {
			return nil, fmt.Errorf("%w: %s has no 8-bit low form", asm.ErrUnsupportedOperand, src)
		}
		out = append(out, opMovRM8R)
	case Width16:
		out = append(out, prefixOpSize, opMovRMR)
	case Width32:
		out = append(out, opMovRMR)
	default:
		return nil, fmt.Errorf("%w: store width %d", asm.ErrUnsupportedOperand, width)
	}
	m, err := encodeMemory(byte(src), mem)
	if err != nil {
		return nil, err
	}
	return append(out, m...), nil
}

// aluOp describes one of the eight classic two-operand integer operations.
// rm is the "r/m, reg" opcode; rm+2 is the "reg, r/m" form and ext selects
// the operation in the 0x81/0x83 immediate group.
type aluOp struct {
	name string
	rm   byte
	ext  byte
}

var (
	aluAdd = aluOp{"add", 0x01, 0}
	aluOr  = aluOp{"or", 0x09, 1}
	aluAdc = aluOp{"adc", 0x11, 2}
	aluSbb = aluOp{"sbb", 0x19, 3}
	aluAnd = aluOp{"and", 0x21, 4}
	aluSub = aluOp{"sub", 0x29, 5}
	aluXor = aluOp{"xor", 0x31, 6}
	aluCmp = aluOp{"cmp", 0x39, 7}
)

// encodeALUImm picks the sign-extended imm8 form when the value allows it.
func encodeALUImm(op aluOp, dst Operand, v uint32) ([]byte, error) {
	rm, err := encodeRM(op.ext, dst)
	if err != nil {
		return nil, err
	}
	if fitsInt8(int32(v)) {
		out := append([]byte{opALUImm8}, rm...)
		return append(out, byte(v)), nil
	}
	out := append([]byte{opALUImm32}, rm...)
	return append(out, imm32(v)...), nil
}

func encodeALU(op aluOp, dst, src Operand) ([]byte, error) {
	switch d := dst.(type) {
	case Reg:
		if err := checkReg(d); err != nil {
			return nil, err
		}
		switch s := src.(type) {
		case Reg:
			if err := checkReg(s); err != nil {
				return nil, err
			}
			return []byte{op.rm, modrm(modReg, byte(s), byte(d))}, nil
		case Imm:
			v, err := s.word()
			if err != nil {
				return nil, err
			}
			return encodeALUImm(op, d, v)
		case Mem:
			m, err := encodeMemory(byte(d), s)
			if err != nil {
				return nil, err
			}
			return append([]byte{op.rm + 2}, m...), nil
		}
	case Mem:
		switch s := src.(type) {
		case Reg:
			if err := checkReg(s); err != nil {
				return nil, err
			}
			m, err := encodeMemory(byte(s), d)
			if err != nil {
				return nil, err
			}
			return append([]byte{op.rm}, m...), nil
		case Imm:
			v, err := s.word()
			if err != nil {
				return nil, err
			}
			return encodeALUImm(op, d, v)
		}
	}
	return nil, fmt.Errorf("%w: %s %v, %v", asm.ErrUnsupportedOperand, op.name, dst, src)
}

func encodeTest(dst, src Operand) ([]byte, error) {
	d, ok := dst.(Reg)
	if !ok || !d.valid() {
		return nil, fmt.Errorf("%w: test %v, %v", asm.ErrUnsupportedOperand, dst, src)
	}
	switch s := src.(type) {
	case Imm:
		v, err := s.word()
		if err != nil {
			return nil, err
		}
		if d == EAX {
			return append([]byte{opTestEAXImm}, imm32(v)...), nil
		}
		return append([]byte{opGroup3, modrm(modReg, extTest, byte(d))}, imm32(v)...), nil
	case Reg:
		if err := checkReg(s); err != nil {
			return nil, err
		}
		return []byte{opTestRMR, modrm(modReg, byte(s), byte(d))}, nil
	}
	return nil, fmt.Errorf("%w: test %v, %v", asm.ErrUnsupportedOperand, dst, src)
}

// encodeGroup3 encodes the single-operand F7 /ext forms (not, neg, mul, imul).
func encodeGroup3(ext byte, op Operand) ([]byte, error) {
	rm, err := encodeRM(ext, op)
	if err != nil {
		return nil, err
	}
	return append([]byte{opGroup3}, rm...), nil
}

func encodeIMul(dst Reg, src Operand) ([]byte, error) {
	if err := checkReg(dst); err != nil {
		return nil, err
	}
	switch s := src.(type) {
	case Reg, Mem:
		rm, err := encodeRM(byte(dst), s)
		if err != nil {
			return nil, err
		}
		return append([]byte{opEscape, opIMulRRM}, rm...), nil
	case Imm:
		v, err := s.word()
		if err != nil {
			return nil, err
		}
		if fitsInt8(int32(v)) {
			return []byte{opIMulImm8, modrm(modReg, byte(dst), byte(dst)), byte(v)}, nil
		}
		return append([]byte{opIMulImm32, modrm(modReg, byte(dst), byte(dst))}, imm32(v)...), nil
	}
	return nil, fmt.Errorf("%w: imul %s, %v", asm.ErrUnsupportedOperand, dst, src)
}

// shiftOp selects the operation in the C1/D1/D3 shift group.
type shiftOp struct {
	name string
	ext  byte
}

var (
	shiftRol = shiftOp{"rol", 0}
	shiftRor = shiftOp{"ror", 1}
	shiftShl = shiftOp{"shl", 4}
	shiftShr = shiftOp{"shr", 5}
	shiftSar = shiftOp{"sar", 7}
)

func encodeShift(op shiftOp, dst, count Operand) ([]byte, error) {
	rm, err := encodeRM(op.ext, dst)
	if err != nil {
		return nil, err
	}
	switch c := count.(type) {
	case Imm:
		switch {
		case c == 1:
			return append([]byte{opShift1}, rm...), nil
		case c > 1 && c < 32:
			out := append([]byte{opShiftImm8}, rm...)
			return append(out, byte(c)), nil
		}
		return nil, fmt.Errorf("%w: %s count %s outside 1..31", asm.ErrUnsupportedOperand, op.name, c)
	case Reg:
		// The variable-count form always reads its count from cl.
		if c != ECX {
			return nil, fmt.Errorf("%w: %s count must be in ecx, got %s", asm.ErrUnsupportedOperand, op.name, c)
		}
		return append([]byte{opShiftCL}, rm...), nil
	}
	return nil, fmt.Errorf("%w: %s %v, %v", asm.ErrUnsupportedOperand, op.name, dst, count)
}
