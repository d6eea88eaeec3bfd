package asm

import (
	"fmt"
	"math"
)

// Label identifies a jump target inside one session. Labels are only
// meaningful to the LabelTable that issued them.
type Label int

type labelState struct {
	name    string
	pos     int
	defined bool
	refs    []int
}

// LabelTable tracks label definitions and the one-byte displacement
// placeholders that reference them.
type LabelTable struct {
	labels []labelState
	byName map[string]Label
	// pending counts references added since the last successful Link.
	pending int
}

// New allocates an undefined, unreferenced label.
func (t *LabelTable) New() Label {
	t.labels = append(t.labels, labelState{})
	return Label(len(t.labels) - 1)
}

// Named returns the label bound to name, allocating it on first use.
func (t *LabelTable) Named(name string) Label {
	if l, ok := t.byName[name]; ok {
		return l
	}
	if t.byName == nil {
		t.byName = make(map[string]Label)
	}
	l := t.New()
	t.labels[l].name = name
	t.byName[name] = l
	return l
}

// Name returns a printable name for l.
func (t *LabelTable) Name(l Label) string {
	if int(l) >= 0 && int(l) < len(t.labels) && t.labels[l].name != "" {
		return fmt.Sprintf("%q", t.labels[l].name)
	}
	return fmt.Sprintf("L%d", int(l))
}

func (t *LabelTable) state(l Label) (*labelState, error) {
	if int(l) < 0 || int(l) >= len(t.labels) {
		return nil, fmt.Errorf("%w: L%d", ErrUnknownLabel, int(l))
	}
	return &t.labels[l], nil
}

// Define binds l to pos. A label can be defined once.
func (t *LabelTable) Define(l Label, pos int) error {
	st, err := t.state(l)
	if err != nil {
		return err
	}
	if st.defined {
		return fmt.Errorf("%w: %s already at offset %d", ErrLabelRedefined, t.Name(l), st.pos)
	}
	st.pos = pos
	st.defined = true
	return nil
}

// Position reports where l was defined.
func (t *LabelTable) Position(l Label) (int, bool) {
	st, err := t.state(l)
	if err != nil || !st.defined {
		return 0, false
	}
	return st.pos, true
}

// Reference records that the byte at pos holds a displacement to l.
func (t *LabelTable) Reference(l Label, pos int) error {
	st, err := t.state(l)
	if err != nil {
		return err
	}
	st.refs = append(st.refs, pos)
	t.pending++
	return nil
}

// Pending reports the number of references added since the last Link.
func (t *LabelTable) Pending() int { return t.pending }

// Link rewrites every recorded reference with the signed distance from the
// byte following the placeholder to the label's position. It returns the
// number of references written.
func (t *LabelTable) Link(buf *CodeBuffer) (int, error) {
	n := 0
	for idx := range t.labels {
		st := &t.labels[idx]
		if len(st.refs) == 0 {
			continue
		}
		if !st.defined {
			return n, fmt.Errorf("%w: %s referenced at offset %d", ErrUnresolvedLabel, t.Name(Label(idx)), st.refs[0])
		}
		for _, ref := range st.refs {
			rel := st.pos - ref - 1
			if rel < math.MinInt8 || rel > math.MaxInt8 {
				return n, fmt.Errorf("%w: %s is %d bytes from offset %d", ErrBranchOutOfRange, t.Name(Label(idx)), rel, ref)
			}
			if err := buf.PatchByte(ref, byte(int8(rel))); err != nil {
				return n, fmt.Errorf("link %s: %w", t.Name(Label(idx)), err)
			}
			n++
		}
	}
	t.pending = 0
	return n, nil
}
