package asm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// CodeBuffer owns the destination bytes of a generation session and a write
// cursor that only moves forward. All positions are offsets from mem[0],
// which lives at the absolute address base.
type CodeBuffer struct {
	mem  []byte
	base uint32
	pos  int
}

// NewCodeBuffer wraps mem. base is the absolute address of mem[0] as seen by
// the generated code.
func NewCodeBuffer(mem []byte, base uint32) *CodeBuffer {
	return &CodeBuffer{mem: mem, base: base}
}

// Position returns the offset of the next byte to be written.
func (b *CodeBuffer) Position() int { return b.pos }

// Address returns the absolute address of the next byte to be written.
func (b *CodeBuffer) Address() uint32 { return b.base + uint32(b.pos) }

// Base returns the absolute address of offset zero.
func (b *CodeBuffer) Base() uint32 { return b.base }

// Cap returns the capacity of the buffer in bytes.
func (b *CodeBuffer) Cap() int { return len(b.mem) }

// Bytes returns a view of the emitted range [0, Position()).
func (b *CodeBuffer) Bytes() []byte { return b.mem[:b.pos] }

// Reset rewinds the cursor so the memory can hold a new session.
func (b *CodeBuffer) Reset() { b.pos = 0 }

func (b *CodeBuffer) reserve(n int) error {
	if n > len(b.mem)-b.pos {
		return fmt.Errorf("%w: need %d bytes at offset %d, capacity %d", ErrBufferOverflow, n, b.pos, len(b.mem))
	}
	return nil
}

// EmitByte writes v at the cursor.
func (b *CodeBuffer) EmitByte(v byte) error {
	if err := b.reserve(1); err != nil {
		return err
	}
	b.mem[b.pos] = v
	b.pos++
	return nil
}

// EmitWord32 writes v little-endian at the cursor.
func (b *CodeBuffer) EmitWord32(v uint32) error {
	if err := b.reserve(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.mem[b.pos:], v)
	b.pos += 4
	return nil
}

// EmitBytes writes p at the cursor. Either all of p is written or nothing is.
func (b *CodeBuffer) EmitBytes(p []byte) error {
	if err := b.reserve(len(p)); err != nil {
		return err
	}
	b.pos += copy(b.mem[b.pos:], p)
	return nil
}

// PatchByte overwrites an already emitted byte.
func (b *CodeBuffer) PatchByte(off int, v byte) error {
	if off < 0 || off >= b.pos {
		return fmt.Errorf("%w: byte at offset %d (emitted %d)", ErrPatchOutOfRange, off, b.pos)
	}
	b.mem[off] = v
	return nil
}

// PatchWord32 overwrites four already emitted bytes, little-endian.
func (b *CodeBuffer) PatchWord32(off int, v uint32) error {
	if off < 0 || off+4 > b.pos {
		return fmt.Errorf("%w: word at offset %d (emitted %d)", ErrPatchOutOfRange, off, b.pos)
	}
	binary.LittleEndian.PutUint32(b.mem[off:], v)
	return nil
}

// Word32 reads back four emitted bytes, little-endian.
func (b *CodeBuffer) Word32(off int) (uint32, error) {
	if off < 0 || off+4 > b.pos {
		return 0, fmt.Errorf("%w: word at offset %d (emitted %d)", ErrPatchOutOfRange, off, b.pos)
	}
	return binary.LittleEndian.Uint32(b.mem[off:]), nil
}

// WriteTo writes the emitted range to w.
func (b *CodeBuffer) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(b.Bytes()).WriteTo(w)
}

// Save writes the emitted range to a file.
func (b *CodeBuffer) Save(path string) error {
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save code buffer: %w", err)
	}
	return nil
}
