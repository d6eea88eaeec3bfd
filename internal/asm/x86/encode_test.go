package x86

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"testing"

	"github.com/tinyrange/jitgen/internal/asm"
)

func assemble(t *testing.T, build func(a *Assembler) error) []byte {
	t.Helper()
	s, a := NewSession(make([]byte, 256), 0x1000)
	if err := build(a); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := s.Link(); err != nil {
		t.Fatalf("Link: %v", err)
	}
	return append([]byte(nil), s.Buffer().Bytes()...)
}

func expectHex(t *testing.T, name string, code []byte, wantHex string) {
	t.Helper()
	want, err := hex.DecodeString(wantHex)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", wantHex, err)
	}
	if !bytes.Equal(code, want) {
		t.Fatalf("%s: got %x, want %x", name, code, want)
	}
}

func TestEncodings(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(a *Assembler) error
		want  string
	}{
		{"mov_reg_imm", func(a *Assembler) error { return a.Mov(EAX, Imm(10000)) }, "b810270000"},
		{"mov_reg_imm_unsigned", func(a *Assembler) error { return a.Mov(EDI, Imm(0xffffffff)) }, "bfffffffff"},
		{"mov_reg_imm_negative", func(a *Assembler) error { return a.Mov(ECX, Imm(-2)) }, "b9feffffff"},
		{"mov_reg_reg", func(a *Assembler) error { return a.Mov(EBX, ECX) }, "8bd9"},
		{"mov_reg_mem", func(a *Assembler) error { return a.Mov(EAX, At(EBP, 8)) }, "8b4508"},
		{"mov_mem_reg", func(a *Assembler) error { return a.Mov(At(ECX, 0), EDX) }, "8911"},
		{"mov_mem_imm", func(a *Assembler) error { return a.Mov(At(ESP, 8), Imm(5)) }, "c744240805000000"},
		{"load32", func(a *Assembler) error { return a.Load(EBX, EBP, 12, Width32) }, "8b5d0c"},
		{"load8", func(a *Assembler) error { return a.Load(EAX, ESI, 1, Width8) }, "8a4601"},
		{"load16", func(a *Assembler) error { return a.Load(EAX, ESI, 0, Width16) }, "668b06"},
		{"load_sext8", func(a *Assembler) error { return a.LoadSignExtend(EAX, EBX, 0, Width8) }, "0fbe03"},
		{"load_sext16", func(a *Assembler) error { return a.LoadSignExtend(EAX, EBX, 0, Width16) }, "0fbf03"},
		{"load_zext16", func(a *Assembler) error { return a.LoadZeroExtend(ECX, EDX, 2, Width16) }, "0fb74a02"},
		{"load_zext8", func(a *Assembler) error { return a.LoadZeroExtend(ECX, EDX, 2, Width8) }, "0fb64a02"},
		{"load_zext32", func(a *Assembler) error { return a.LoadZeroExtend(ECX, EDX, 2, Width32) }, "8b4a02"},
		{"store8", func(a *Assembler) error { return a.Store(EBX, EDI, 0, Width8) }, "881f"},
		{"store16", func(a *Assembler) error { return a.Store(ECX, EAX, 4, Width16) }, "66894804"},
		{"store32", func(a *Assembler) error { return a.Store(ECX, EAX, 4, Width32) }, "894804"},
		{"push_reg", func(a *Assembler) error { return a.Push(EDX) }, "52"},
		{"push_imm", func(a *Assembler) error { return a.Push(Imm(0x12345678)) }, "6878563412"},
		{"push_mem", func(a *Assembler) error { return a.Push(At(EBP, 8)) }, "ff7508"},
		{"pop_reg", func(a *Assembler) error { return a.Pop(ESI) }, "5e"},
		{"pop_mem", func(a *Assembler) error { return a.Pop(At(EAX, 0)) }, "8f00"},
		{"call_reg", func(a *Assembler) error { return a.Call(EAX) }, "ffd0"},
		{"call_mem", func(a *Assembler) error { return a.Call(At(EBX, 4)) }, "ff5304"},
		{"call_abs", func(a *Assembler) error { return a.Call(Imm(0x2000)) }, "e8fb0f0000"},
		{"call_rel_zero", func(a *Assembler) error { return a.CallRel(0) }, "e800000000"},
		{"ret", (*Assembler).Ret, "c3"},
		{"add_rr", func(a *Assembler) error { return a.Add(EAX, EBX) }, "01d8"},
		{"or_rr", func(a *Assembler) error { return a.Or(ECX, EDX) }, "09d1"},
		{"xor_rr", func(a *Assembler) error { return a.Xor(EAX, EAX) }, "31c0"},
		{"sbb_rr", func(a *Assembler) error { return a.Sbb(EBX, ECX) }, "19cb"},
		{"add_imm8", func(a *Assembler) error { return a.Add(ESP, Imm(8)) }, "83c408"},
		{"sub_imm8", func(a *Assembler) error { return a.Sub(EAX, Imm(1)) }, "83e801"},
		{"adc_imm8_zero", func(a *Assembler) error { return a.Adc(EDX, Imm(0)) }, "83d200"},
		{"cmp_imm8_negative", func(a *Assembler) error { return a.Cmp(EAX, Imm(-1)) }, "83f8ff"},
		{"cmp_imm8_unsigned_all_ones", func(a *Assembler) error { return a.Cmp(EAX, Imm(0xffffffff)) }, "83f8ff"},
		{"and_imm32", func(a *Assembler) error { return a.And(EDI, Imm(0xff)) }, "81e7ff000000"},
		{"cmp_imm32", func(a *Assembler) error { return a.Cmp(ESI, Imm(1000)) }, "81fee8030000"},
		{"add_imm32_boundary", func(a *Assembler) error { return a.Add(EAX, Imm(128)) }, "81c080000000"},
		{"sub_imm8_boundary", func(a *Assembler) error { return a.Sub(EAX, Imm(-128)) }, "83e880"},
		{"add_reg_mem", func(a *Assembler) error { return a.Add(EAX, At(EBX, 4)) }, "034304"},
		{"add_mem_imm", func(a *Assembler) error { return a.Add(At(EBX, 0), Imm(1)) }, "830301"},
		{"sub_mem_reg", func(a *Assembler) error { return a.Sub(At(ECX, 0), EAX) }, "2901"},
		{"test_eax_imm", func(a *Assembler) error { return a.Test(EAX, Imm(0x80)) }, "a980000000"},
		{"test_reg_imm", func(a *Assembler) error { return a.Test(ECX, Imm(1)) }, "f7c101000000"},
		{"test_rr", func(a *Assembler) error { return a.Test(EAX, EBX) }, "85d8"},
		{"neg", func(a *Assembler) error { return a.Neg(ECX) }, "f7d9"},
		{"not", func(a *Assembler) error { return a.Not(EAX) }, "f7d0"},
		{"not_mem", func(a *Assembler) error { return a.Not(At(EDX, -4)) }, "f752fc"},
		{"mul_long", func(a *Assembler) error { return a.MulLong(EAX, EBX) }, "f7e3"},
		{"imul_long", func(a *Assembler) error { return a.IMulLong(EAX, ECX) }, "f7e9"},
		{"imul_rr", func(a *Assembler) error { return a.IMul(EAX, EBX) }, "0fafc3"},
		{"imul_imm8", func(a *Assembler) error { return a.IMul(EDX, Imm(3)) }, "6bd203"},
		{"imul_imm32", func(a *Assembler) error { return a.IMul(EDX, Imm(1000)) }, "69d2e8030000"},
		{"shl_1", func(a *Assembler) error { return a.Shl(EAX, Imm(1)) }, "d1e0"},
		{"shr_imm", func(a *Assembler) error { return a.Shr(EBX, Imm(4)) }, "c1eb04"},
		{"sar_cl", func(a *Assembler) error { return a.Sar(EDX, ECX) }, "d3fa"},
		{"rol_imm", func(a *Assembler) error { return a.Rol(ESI, Imm(3)) }, "c1c603"},
		{"ror_1", func(a *Assembler) error { return a.Ror(EDI, Imm(1)) }, "d1cf"},
		{"load_pc", func(a *Assembler) error { return a.LoadPC(EBX) }, "e8000000005b"},
		{"prolog", (*Assembler).Prolog, "558bec"},
		{"epilog", (*Assembler).Epilog, "5dc3"},
		{"pop_args_2", func(a *Assembler) error { return a.PopArgs(2) }, "83c408"},
		{"pop_args_0", func(a *Assembler) error { return a.PopArgs(0) }, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			expectHex(t, tc.name, assemble(t, tc.build), tc.want)
		})
	}
}

func TestMemoryDisplacementForms(t *testing.T) {
	disps := []int32{
		0, 1, -1, 8, 127, -128, 128, -129, 255, 0x100,
		math.MaxInt32, math.MinInt32, 1 << 20, -(1 << 20),
	}
	for d := int32(-300); d <= 300; d += 7 {
		disps = append(disps, d)
	}

	for _, base := range []Reg{EAX, ECX, EDX, EBX, ESI, EDI} {
		for _, d := range disps {
			enc, err := encodeMemory(byte(EDX), At(base, d))
			if err != nil {
				t.Fatalf("encodeMemory(%s, %d): %v", base, d, err)
			}
			mod := enc[0] >> 6
			if reg := (enc[0] >> 3) & 7; reg != byte(EDX) {
				t.Fatalf("[%s%+d]: reg field=%d, want %d", base, d, reg, EDX)
			}
			if rm := enc[0] & 7; rm != byte(base) {
				t.Fatalf("[%s%+d]: rm field=%d, want %d", base, d, rm, base)
			}
			disp := enc[1:]
			switch {
			case d == 0:
				if mod != modIndirect || len(disp) != 0 {
					t.Fatalf("[%s%+d]: mod=%d disp=%x, want mod 0 and no displacement", base, d, mod, disp)
				}
			case d >= -128 && d <= 127:
				if mod != modDisp8 || len(disp) != 1 || int8(disp[0]) != int8(d) {
					t.Fatalf("[%s%+d]: mod=%d disp=%x, want one byte", base, d, mod, disp)
				}
			default:
				if mod != modDisp32 || len(disp) != 4 || int32(binary.LittleEndian.Uint32(disp)) != d {
					t.Fatalf("[%s%+d]: mod=%d disp=%x, want four bytes", base, d, mod, disp)
				}
			}
		}
	}
}

func TestSpecialBaseRegisters(t *testing.T) {
	for _, tc := range []struct {
		name string
		mem  Mem
		want string
	}{
		{"esp", At(ESP, 0), "0424"},
		{"esp_disp8", At(ESP, 4), "442404"},
		{"esp_disp32", At(ESP, 0x200), "842400020000"},
		{"ebp_zero", At(EBP, 0), "4500"},
		{"ebp_disp8", At(EBP, -4), "45fc"},
		{"ebp_disp32", At(EBP, 0x1000), "8500100000"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := encodeMemory(byte(EAX), tc.mem)
			if err != nil {
				t.Fatalf("encodeMemory: %v", err)
			}
			expectHex(t, tc.name, enc, tc.want)
		})
	}
}

func TestMovImmediateRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, -128, 10000, math.MaxInt32, math.MinInt32, math.MaxUint32, 0x80000000, 0xdeadbeef}
	for _, v := range values {
		code := assemble(t, func(a *Assembler) error { return a.Mov(ESI, Imm(v)) })
		if len(code) != 5 || code[0] != opMovRegImm+byte(ESI) {
			t.Fatalf("mov esi, %#x encoded as %x", v, code)
		}
		if got, want := binary.LittleEndian.Uint32(code[1:]), uint32(v); got != want {
			t.Fatalf("mov esi, %#x: embedded %#x, want %#x", v, got, want)
		}
	}
}

func TestALUImmediateFormsAgree(t *testing.T) {
	for _, v := range []int64{-129, -128, -1, 0, 1, 127, 128, 0xffffff80, 0xffffff7f} {
		code := assemble(t, func(a *Assembler) error { return a.Add(ECX, Imm(v)) })
		var got uint32
		switch code[0] {
		case opALUImm8:
			got = uint32(int32(int8(code[2])))
		case opALUImm32:
			got = binary.LittleEndian.Uint32(code[2:])
		default:
			t.Fatalf("add ecx, %#x: unexpected opcode %#x", v, code[0])
		}
		if got != uint32(v) {
			t.Fatalf("add ecx, %#x: decodes to %#x", v, got)
		}
		short := int32(uint32(v)) >= -128 && int32(uint32(v)) <= 127
		if short != (code[0] == opALUImm8) {
			t.Fatalf("add ecx, %#x: opcode %#x, short form expected=%v", v, code[0], short)
		}
	}
}

func TestUnsupportedOperands(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(a *Assembler) error
	}{
		{"mov_imm_dst", func(a *Assembler) error { return a.Mov(Imm(1), EAX) }},
		{"mov_mem_mem", func(a *Assembler) error { return a.Mov(At(EAX, 0), At(EBX, 0)) }},
		{"mov_nil", func(a *Assembler) error { return a.Mov(EAX, nil) }},
		{"mov_bad_reg", func(a *Assembler) error { return a.Mov(Reg(9), EAX) }},
		{"mov_imm_too_wide", func(a *Assembler) error { return a.Mov(EAX, Imm(1<<33)) }},
		{"mov_imm_too_negative", func(a *Assembler) error { return a.Mov(EAX, Imm(math.MinInt32-1)) }},
		{"load_width", func(a *Assembler) error { return a.Load(EAX, EBX, 0, Width(64)) }},
		{"load8_high_reg", func(a *Assembler) error { return a.Load(ESI, EBX, 0, Width8) }},
		{"store8_high_reg", func(a *Assembler) error { return a.Store(EDI, EBX, 0, Width8) }},
		{"sext_width", func(a *Assembler) error { return a.LoadSignExtend(EAX, EBX, 0, Width(64)) }},
		{"bad_base", func(a *Assembler) error { return a.Mov(EAX, At(Reg(8), 0)) }},
		{"push_nil", func(a *Assembler) error { return a.Push(nil) }},
		{"pop_imm", func(a *Assembler) error { return a.Pop(Imm(1)) }},
		{"call_nil", func(a *Assembler) error { return a.Call(nil) }},
		{"add_imm_dst", func(a *Assembler) error { return a.Add(Imm(1), EAX) }},
		{"add_mem_mem", func(a *Assembler) error { return a.Add(At(EAX, 0), At(EBX, 0)) }},
		{"add_reg_symbol", func(a *Assembler) error { return a.Add(EAX, Symbol("x")) }},
		{"test_mem", func(a *Assembler) error { return a.Test(At(EAX, 0), Imm(1)) }},
		{"test_reg_mem", func(a *Assembler) error { return a.Test(EAX, At(EAX, 0)) }},
		{"neg_imm", func(a *Assembler) error { return a.Neg(Imm(1)) }},
		{"mul_not_eax", func(a *Assembler) error { return a.MulLong(ECX, EBX) }},
		{"imul_long_not_eax", func(a *Assembler) error { return a.IMulLong(EDX, EBX) }},
		{"mul_imm", func(a *Assembler) error { return a.MulLong(EAX, Imm(3)) }},
		{"imul_symbol", func(a *Assembler) error { return a.IMul(EAX, Symbol("x")) }},
		{"shift_not_ecx", func(a *Assembler) error { return a.Shl(EAX, EDX) }},
		{"shift_zero", func(a *Assembler) error { return a.Shr(EAX, Imm(0)) }},
		{"shift_too_far", func(a *Assembler) error { return a.Sar(EAX, Imm(32)) }},
		{"shift_imm_dst", func(a *Assembler) error { return a.Rol(Imm(1), Imm(1)) }},
		{"jcc_bad_cond", func(a *Assembler) error { return a.Jcc(Cond(16), a.NewLabel()) }},
		{"pop_args_negative", func(a *Assembler) error { return a.PopArgs(-1) }},
		{"mutable_bad_reg", func(a *Assembler) error { _, err := a.MovMutable(Reg(8), Imm(1)); return err }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, a := NewSession(make([]byte, 64), 0)
			err := tc.build(a)
			if !errors.Is(err, asm.ErrUnsupportedOperand) {
				t.Fatalf("err=%v, want ErrUnsupportedOperand", err)
			}
			if got := s.Position(); got != 0 {
				t.Fatalf("emitted %d bytes (%x) for a rejected instruction", got, s.Buffer().Bytes())
			}
		})
	}
}

func TestNewReg(t *testing.T) {
	for id := 0; id < 8; id++ {
		r, err := NewReg(id)
		if err != nil {
			t.Fatalf("NewReg(%d): %v", id, err)
		}
		if int(r) != id {
			t.Fatalf("NewReg(%d)=%d", id, r)
		}
	}
	for _, id := range []int{-1, 8, 255} {
		if _, err := NewReg(id); !errors.Is(err, asm.ErrUnsupportedOperand) {
			t.Fatalf("NewReg(%d) err=%v, want ErrUnsupportedOperand", id, err)
		}
	}
	if r, err := ParseReg("EBP"); err != nil || r != EBP {
		t.Fatalf("ParseReg(EBP)=%v, %v", r, err)
	}
}
