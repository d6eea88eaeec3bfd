// Package listing reads YAML descriptions of i386 code and turns them into
// fragments for the assembler.
//
// A listing looks like:
//
//	base: 0x8000
//	symbols:
//	  helper: 0x9000
//	code:
//	  - op: mov
//	    args: [eax, "[esp+4]"]
//	  - label: loop
//	  - op: sub
//	    args: [eax, 1]
//	  - op: jne
//	    args: ["@loop"]
//	  - op: ret
package listing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/jitgen/internal/asm"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownOp      = errors.New("unknown op")
	ErrInvalidOperand = errors.New("invalid operand")
	ErrInvalidStep    = errors.New("invalid step")
)

// Listing is a decoded listing document.
type Listing struct {
	Base    uint32            `yaml:"base"`
	Symbols map[string]uint32 `yaml:"symbols,omitempty"`
	Code    []Step            `yaml:"code"`
}

// Step is either an instruction (Op with Args) or a label definition.
type Step struct {
	Op    string   `yaml:"op,omitempty"`
	Args  []string `yaml:"args,omitempty"`
	Label string   `yaml:"label,omitempty"`

	// Line is the source line of the step, when known.
	Line int `yaml:"-"`
}

func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %w: expected a mapping", node.Line, ErrInvalidStep)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch key := node.Content[i].Value; key {
		case "op", "args", "label":
		default:
			return fmt.Errorf("line %d: %w: unknown key %q", node.Content[i].Line, ErrInvalidStep, key)
		}
	}

	type plain Step
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Step(p)
	s.Line = node.Line
	if (s.Op == "") == (s.Label == "") {
		return fmt.Errorf("line %d: %w: a step needs exactly one of op or label", node.Line, ErrInvalidStep)
	}
	if s.Label != "" && len(s.Args) > 0 {
		return fmt.Errorf("line %d: %w: label %q takes no args", node.Line, ErrInvalidStep, s.Label)
	}
	return nil
}

// Parse decodes a listing. Unknown keys are rejected.
func Parse(data []byte) (*Listing, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var l Listing
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse listing: empty document")
		}
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return &l, nil
}

// Load reads and parses the listing at path.
func Load(path string) (*Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	return Parse(data)
}

// Fragment translates the code section. Operands are checked here; symbols
// and labels are only resolved once the fragment is emitted.
func (l *Listing) Fragment() (asm.Fragment, error) {
	group := make(asm.Group, 0, len(l.Code))
	for idx, step := range l.Code {
		frag, err := step.fragment()
		if err != nil {
			return nil, fmt.Errorf("step %d (line %d): %w", idx, step.Line, err)
		}
		group = append(group, frag)
	}
	return group, nil
}

func (s Step) fragment() (asm.Fragment, error) {
	if s.Label != "" {
		return asm.MarkLabel(s.Label), nil
	}
	build, ok := lookupOp(s.Op)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, s.Op)
	}
	frag, err := build(s.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Op, err)
	}
	return frag, nil
}

// Assemble registers the listing's symbols with s, emits its code and links.
func (l *Listing) Assemble(s *asm.Session) error {
	frag, err := l.Fragment()
	if err != nil {
		return err
	}
	for name, addr := range l.Symbols {
		s.AddSymbol(name, addr)
	}
	if err := frag.Emit(s); err != nil {
		return fmt.Errorf("emit listing: %w", err)
	}
	return s.Link()
}
