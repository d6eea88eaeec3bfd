package asm

import (
	"fmt"
	"log/slog"
)

// Context is the architecture-neutral capability that instruction encoders
// build on: byte emission, labels and symbol resolution.
type Context interface {
	EmitBytes(data []byte) error
	Position() int
	Address() uint32
	// PatchWord32 overwrites four already emitted bytes at off.
	PatchWord32(off int, v uint32) error

	NewLabel() Label
	NamedLabel(name string) Label
	DefineLabel(label Label) error
	// ReferenceLabel emits prefix followed by a one-byte placeholder and
	// records the placeholder as a pending displacement to label. Nothing is
	// emitted when label is unknown or the bytes do not fit.
	ReferenceLabel(label Label, prefix ...byte) error

	Resolve(name string) (uint32, error)
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var (
	_ Fragment = Group{}
)

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

type labelDef struct {
	name string
}

// MarkLabel defines the named label at the current position.
func MarkLabel(name string) Fragment {
	return &labelDef{name: name}
}

func (l *labelDef) Emit(ctx Context) error {
	return ctx.DefineLabel(ctx.NamedLabel(l.name))
}

// Session is one generation session over a CodeBuffer.
type Session struct {
	buf     *CodeBuffer
	labels  LabelTable
	symbols Resolver
	log     *slog.Logger
	linked  bool
}

var (
	_ Context = (*Session)(nil)
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger routes session diagnostics to log.
func WithLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// NewSession starts a generation session that emits into buf.
func NewSession(buf *CodeBuffer, opts ...SessionOption) *Session {
	s := &Session{buf: buf, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Buffer returns the session's code buffer.
func (s *Session) Buffer() *CodeBuffer { return s.buf }

func (s *Session) EmitBytes(data []byte) error {
	return s.buf.EmitBytes(data)
}

func (s *Session) Position() int { return s.buf.Position() }

func (s *Session) Address() uint32 { return s.buf.Address() }

func (s *Session) PatchWord32(off int, v uint32) error { return s.buf.PatchWord32(off, v) }

func (s *Session) NewLabel() Label { return s.labels.New() }

func (s *Session) NamedLabel(name string) Label { return s.labels.Named(name) }

func (s *Session) DefineLabel(label Label) error {
	return s.labels.Define(label, s.buf.Position())
}

func (s *Session) ReferenceLabel(label Label, prefix ...byte) error {
	if _, err := s.labels.state(label); err != nil {
		return err
	}
	pos := s.buf.Position() + len(prefix)
	if err := s.EmitBytes(append(prefix[:len(prefix):len(prefix)], 0)); err != nil {
		return err
	}
	return s.labels.Reference(label, pos)
}

// LabelPosition reports the offset a label was defined at.
func (s *Session) LabelPosition(label Label) (int, bool) {
	return s.labels.Position(label)
}

func (s *Session) AddSymbol(name string, addr uint32) { s.symbols.AddSymbol(name, addr) }

func (s *Session) AddProvider(p SymbolProvider) { s.symbols.AddProvider(p) }

func (s *Session) Resolve(name string) (uint32, error) { return s.symbols.Resolve(name) }

// Link resolves every label reference. Code is only safe to execute after
// Link succeeds, and again after any later emission that references labels.
func (s *Session) Link() error {
	n, err := s.labels.Link(s.buf)
	if err != nil {
		s.linked = false
		return fmt.Errorf("link: %w", err)
	}
	s.linked = true
	s.log.Debug("linked code", "fixups", n, "size", s.buf.Position(), "base", fmt.Sprintf("%#x", s.buf.Base()))
	return nil
}

// Linked reports whether Link has succeeded and no label reference was added
// since.
func (s *Session) Linked() bool {
	return s.linked && s.labels.Pending() == 0
}
