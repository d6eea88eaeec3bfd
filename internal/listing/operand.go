package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyrange/jitgen/internal/asm/x86"
)

// parseOperand accepts a register name, an integer, "[reg]", "[reg+disp]",
// "[reg-disp]" or "sym:name".
func parseOperand(text string) (x86.Operand, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, fmt.Errorf("%w: empty operand", ErrInvalidOperand)
	case strings.HasPrefix(text, "["):
		return parseMem(text)
	case strings.HasPrefix(text, "sym:"):
		name := strings.TrimSpace(strings.TrimPrefix(text, "sym:"))
		if name == "" {
			return nil, fmt.Errorf("%w: empty symbol name", ErrInvalidOperand)
		}
		return x86.Symbol(name), nil
	case strings.HasPrefix(text, "@"):
		return nil, fmt.Errorf("%w: label %s is only valid as a jump target", ErrInvalidOperand, text)
	}
	if r, err := x86.ParseReg(text); err == nil {
		return r, nil
	}
	v, err := parseInt(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperand, text)
	}
	return x86.Imm(v), nil
}

func parseInt(text string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64)
}

func parseMem(text string) (x86.Mem, error) {
	if !strings.HasSuffix(text, "]") {
		return x86.Mem{}, fmt.Errorf("%w: unterminated memory operand %q", ErrInvalidOperand, text)
	}
	inner := strings.TrimSpace(text[1 : len(text)-1])

	regPart, dispPart := inner, ""
	if idx := strings.IndexAny(inner, "+-"); idx >= 0 {
		regPart, dispPart = inner[:idx], inner[idx:]
	}
	base, err := x86.ParseReg(regPart)
	if err != nil {
		return x86.Mem{}, fmt.Errorf("%w: base of %q", ErrInvalidOperand, text)
	}
	if dispPart == "" {
		return x86.At(base, 0), nil
	}

	sign := int64(1)
	if dispPart[0] == '-' {
		sign = -1
	}
	v, err := strconv.ParseInt(strings.TrimSpace(dispPart[1:]), 0, 64)
	if err != nil {
		return x86.Mem{}, fmt.Errorf("%w: displacement of %q", ErrInvalidOperand, text)
	}
	disp := sign * v
	if disp < -1<<31 || disp > 1<<31-1 {
		return x86.Mem{}, fmt.Errorf("%w: displacement of %q exceeds 32 bits", ErrInvalidOperand, text)
	}
	return x86.At(base, int32(disp)), nil
}

func parseLabel(text string) (string, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "@") || len(text) == 1 {
		return "", fmt.Errorf("%w: jump target %q must be @label", ErrInvalidOperand, text)
	}
	return text[1:], nil
}

func parseWidth(text string) (x86.Width, error) {
	switch strings.TrimSpace(text) {
	case "8":
		return x86.Width8, nil
	case "16":
		return x86.Width16, nil
	case "32":
		return x86.Width32, nil
	}
	return 0, fmt.Errorf("%w: width %q", ErrInvalidOperand, text)
}
