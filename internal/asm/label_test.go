package asm

import (
	"errors"
	"testing"
)

func newTestSession(size int) *Session {
	return NewSession(NewCodeBuffer(make([]byte, size), 0x4000))
}

func TestLinkForwardAndBackward(t *testing.T) {
	s := newTestSession(64)

	back := s.NewLabel()
	fwd := s.NewLabel()

	if err := s.DefineLabel(back); err != nil {
		t.Fatalf("DefineLabel: %v", err)
	}
	if err := s.EmitBytes([]byte{0x90, 0x90, 0xeb}); err != nil {
		t.Fatalf("EmitBytes: %v", err)
	}
	backRef := s.Position()
	if err := s.ReferenceLabel(back); err != nil {
		t.Fatalf("ReferenceLabel: %v", err)
	}
	if err := s.EmitBytes([]byte{0xeb}); err != nil {
		t.Fatalf("EmitBytes: %v", err)
	}
	fwdRef := s.Position()
	if err := s.ReferenceLabel(fwd); err != nil {
		t.Fatalf("ReferenceLabel: %v", err)
	}
	if err := s.EmitBytes([]byte{0x90, 0x90, 0x90}); err != nil {
		t.Fatalf("EmitBytes: %v", err)
	}
	if err := s.DefineLabel(fwd); err != nil {
		t.Fatalf("DefineLabel: %v", err)
	}

	if s.Linked() {
		t.Fatalf("Linked() before Link")
	}
	if err := s.Link(); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !s.Linked() {
		t.Fatalf("Linked() false after Link")
	}

	code := s.Buffer().Bytes()
	if got, want := int8(code[backRef]), int8(0-backRef-1); got != want {
		t.Fatalf("backward displacement=%d, want %d", got, want)
	}
	fwdPos, _ := s.LabelPosition(fwd)
	if got, want := int8(code[fwdRef]), int8(fwdPos-fwdRef-1); got != want {
		t.Fatalf("forward displacement=%d, want %d", got, want)
	}
	if got := int8(code[fwdRef]); got != 3 {
		t.Fatalf("forward displacement=%d, want 3", got)
	}
}

func TestLinkUnresolved(t *testing.T) {
	s := newTestSession(8)
	l := s.NamedLabel("missing")
	if err := s.ReferenceLabel(l); err != nil {
		t.Fatalf("ReferenceLabel: %v", err)
	}
	err := s.Link()
	if !errors.Is(err, ErrUnresolvedLabel) {
		t.Fatalf("Link err=%v, want ErrUnresolvedLabel", err)
	}
	if s.Linked() {
		t.Fatalf("Linked() true after failed Link")
	}
}

func TestLinkUnusedUndefinedLabel(t *testing.T) {
	s := newTestSession(8)
	_ = s.NewLabel()
	if err := s.Link(); err != nil {
		t.Fatalf("Link with unused label: %v", err)
	}
}

func TestDefineLabelTwice(t *testing.T) {
	s := newTestSession(8)
	l := s.NewLabel()
	if err := s.DefineLabel(l); err != nil {
		t.Fatalf("DefineLabel: %v", err)
	}
	if err := s.DefineLabel(l); !errors.Is(err, ErrLabelRedefined) {
		t.Fatalf("second DefineLabel err=%v, want ErrLabelRedefined", err)
	}
}

func TestUnknownLabel(t *testing.T) {
	s := newTestSession(8)
	if err := s.DefineLabel(Label(3)); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("DefineLabel err=%v, want ErrUnknownLabel", err)
	}
	if err := s.ReferenceLabel(Label(-1)); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("ReferenceLabel err=%v, want ErrUnknownLabel", err)
	}
	if got := s.Position(); got != 0 {
		t.Fatalf("Position()=%d after rejected reference, want 0", got)
	}
}

func TestLinkOutOfRange(t *testing.T) {
	s := newTestSession(256)
	l := s.NewLabel()
	if err := s.ReferenceLabel(l); err != nil {
		t.Fatalf("ReferenceLabel: %v", err)
	}
	if err := s.EmitBytes(make([]byte, 200)); err != nil {
		t.Fatalf("EmitBytes: %v", err)
	}
	if err := s.DefineLabel(l); err != nil {
		t.Fatalf("DefineLabel: %v", err)
	}
	if err := s.Link(); !errors.Is(err, ErrBranchOutOfRange) {
		t.Fatalf("Link err=%v, want ErrBranchOutOfRange", err)
	}
}

func TestRelinkAfterMoreEmission(t *testing.T) {
	s := newTestSession(32)
	l := s.NamedLabel("top")
	if err := s.DefineLabel(l); err != nil {
		t.Fatalf("DefineLabel: %v", err)
	}
	if err := s.Link(); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := s.ReferenceLabel(l); err != nil {
		t.Fatalf("ReferenceLabel: %v", err)
	}
	if s.Linked() {
		t.Fatalf("Linked() true with a reference added after Link")
	}
	if err := s.Link(); err != nil {
		t.Fatalf("second Link: %v", err)
	}
	if got := int8(s.Buffer().Bytes()[0]); got != -1 {
		t.Fatalf("displacement=%d, want -1", got)
	}
}

func TestNamedLabelIsStable(t *testing.T) {
	s := newTestSession(8)
	a := s.NamedLabel("loop")
	b := s.NamedLabel("loop")
	c := s.NamedLabel("done")
	if a != b {
		t.Fatalf("NamedLabel returned %d and %d for the same name", a, b)
	}
	if a == c {
		t.Fatalf("NamedLabel returned the same label for different names")
	}
}

func TestGroupAndMarkLabel(t *testing.T) {
	s := newTestSession(8)
	emit := fragmentFunc(func(ctx Context) error { return ctx.EmitBytes([]byte{0x90}) })
	if err := (Group{emit, MarkLabel("here"), emit}).Emit(s); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	pos, ok := s.LabelPosition(s.NamedLabel("here"))
	if !ok || pos != 1 {
		t.Fatalf("label at %d (defined=%v), want 1", pos, ok)
	}
	if err := MarkLabel("here").Emit(s); !errors.Is(err, ErrLabelRedefined) {
		t.Fatalf("MarkLabel twice err=%v, want ErrLabelRedefined", err)
	}
}

type fragmentFunc func(Context) error

func (f fragmentFunc) Emit(ctx Context) error { return f(ctx) }
