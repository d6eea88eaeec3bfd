package asm

import "errors"

var (
	// ErrUnsupportedOperand is returned when an instruction encoder is handed
	// an operand kind or width it does not implement.
	ErrUnsupportedOperand = errors.New("unsupported operand")

	// ErrUnresolvedLabel is returned by Link when a referenced label was
	// never defined. Code produced by a failed Link must not be executed.
	ErrUnresolvedLabel = errors.New("unresolved label")

	// ErrLabelRedefined is returned when a label is defined twice.
	ErrLabelRedefined = errors.New("label redefined")

	// ErrUnknownLabel is returned for label ids that were not issued by the
	// session's label table.
	ErrUnknownLabel = errors.New("unknown label")

	// ErrBranchOutOfRange is returned by Link when a short branch cannot reach
	// its target with a signed 8-bit displacement.
	ErrBranchOutOfRange = errors.New("branch target out of range")

	// ErrSymbolNotFound reports that neither the local symbol table nor any
	// provider knows a name. Providers return it (wrapped) to signal absence.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrBufferOverflow is returned when an emission would write past the end
	// of the code buffer.
	ErrBufferOverflow = errors.New("code buffer overflow")

	// ErrPatchOutOfRange is returned when a patch targets bytes that were
	// never emitted.
	ErrPatchOutOfRange = errors.New("patch out of range")
)
