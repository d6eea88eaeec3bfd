// Package timeslice records how long each phase of turning a listing into
// running code takes, in a small binary file that cmd/timeslice summarises.
package timeslice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	Magic   uint32 = 0x4a50524f // "JPRO"
	Version uint32 = 1

	// headerAlign keeps the sample stream page aligned.
	headerAlign = 4096
)

var (
	ErrAlreadyOpen = errors.New("timeslice: profile already open")
	ErrClosed      = errors.New("timeslice: profile already closed")
	ErrFormat      = errors.New("timeslice: malformed profile")
)

type header struct {
	Magic      uint32
	Version    uint32
	PhasesSize uint32
}

// Phase identifies one kind of timed step. Zero is never a registered phase.
type Phase uint32

type PhaseInfo struct {
	Name  string
	Flags Flags
}

type Flags uint32

const (
	// FlagCodegen marks phases spent inside the assembler.
	FlagCodegen Flags = 1 << iota
	// FlagNative marks phases spent running generated code.
	FlagNative
)

func (f Flags) String() string {
	var names []string
	if f&FlagCodegen != 0 {
		names = append(names, "codegen")
	}
	if f&FlagNative != 0 {
		names = append(names, "native")
	}
	return strings.Join(names, ",")
}

var phases = make(map[Phase]PhaseInfo)

// RegisterPhase must be called during package initialisation.
func RegisterPhase(name string, flags Flags) Phase {
	id := Phase(len(phases) + 1)
	phases[id] = PhaseInfo{Name: name, Flags: flags}
	return id
}

var (
	Load     = RegisterPhase("load", FlagCodegen)
	Assemble = RegisterPhase("assemble", FlagCodegen)
	Map      = RegisterPhase("map", 0)
	Call     = RegisterPhase("call", FlagNative)
)

type sample struct {
	Phase    Phase
	_        uint32
	Duration int64
}

var sampleSize = binary.Size(sample{})

// Profile streams samples to its writer from a background goroutine.
type Profile struct {
	w       io.Writer
	samples chan sample
	done    chan error

	// mu orders sends in Record against Close closing samples.
	mu     sync.RWMutex
	closed bool
}

func (p *Profile) drain() {
	defer close(p.done)

	var buf [headerAlign]byte
	off := 0
	for s := range p.samples {
		if off+sampleSize > len(buf) {
			if _, err := p.w.Write(buf[:off]); err != nil {
				p.done <- err
				// keep receiving so Record never blocks on a dead profile
				for range p.samples {
				}
				return
			}
			off = 0
		}
		binary.LittleEndian.PutUint32(buf[off:], uint32(s.Phase))
		binary.LittleEndian.PutUint32(buf[off+4:], 0)
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(s.Duration))
		off += sampleSize
	}
	if off > 0 {
		if _, err := p.w.Write(buf[:off]); err != nil {
			p.done <- err
			return
		}
	}
	p.done <- nil
}

// Close flushes buffered samples and detaches the profile.
func (p *Profile) Close() error {
	if !active.CompareAndSwap(p, nil) {
		return ErrClosed
	}
	p.mu.Lock()
	p.closed = true
	close(p.samples)
	p.mu.Unlock()
	if err := <-p.done; err != nil {
		return fmt.Errorf("timeslice: flush: %w", err)
	}
	return nil
}

var active atomic.Pointer[Profile]

// Start writes the profile header to w and makes the profile the target of
// Record until it is closed.
func Start(w io.Writer) (*Profile, error) {
	if active.Load() != nil {
		return nil, ErrAlreadyOpen
	}

	table, err := json.Marshal(phases)
	if err != nil {
		return nil, fmt.Errorf("timeslice: encode phases: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, header{
		Magic:      Magic,
		Version:    Version,
		PhasesSize: uint32(len(table)),
	}); err != nil {
		return nil, fmt.Errorf("timeslice: write header: %w", err)
	}
	if _, err := w.Write(table); err != nil {
		return nil, fmt.Errorf("timeslice: write phases: %w", err)
	}
	if pad := padding(len(table)); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return nil, fmt.Errorf("timeslice: write padding: %w", err)
		}
	}

	p := &Profile{
		w:       w,
		samples: make(chan sample, 1024),
		done:    make(chan error, 1),
	}
	go p.drain()

	if !active.CompareAndSwap(nil, p) {
		close(p.samples)
		<-p.done
		return nil, ErrAlreadyOpen
	}
	return p, nil
}

func padding(tableSize int) int {
	off := binary.Size(header{}) + tableSize
	if rem := off % headerAlign; rem != 0 {
		return headerAlign - rem
	}
	return 0
}

// Record is a no-op when no profile is active. It may race with Close; a
// sample recorded after Close has begun is dropped.
func Record(phase Phase, d time.Duration) {
	p := active.Load()
	if p == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.closed {
		p.samples <- sample{Phase: phase, Duration: d.Nanoseconds()}
	}
}

// Stopwatch attributes the time since its previous lap to a phase.
// It is not safe for concurrent use.
type Stopwatch struct {
	last time.Time
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{last: time.Now()}
}

func (s *Stopwatch) Lap(phase Phase) time.Duration {
	now := time.Now()
	d := now.Sub(s.last)
	s.last = now
	Record(phase, d)
	return d
}

// ReadAll calls fn for every sample in a profile, in recording order.
func ReadAll(r io.Reader, fn func(name string, flags Flags, d time.Duration) error) error {
	buf := bufio.NewReaderSize(r, headerAlign)

	var hdr header
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("%w: bad magic %#x", ErrFormat, hdr.Magic)
	}
	if hdr.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrFormat, hdr.Version)
	}

	var table map[Phase]PhaseInfo
	if err := json.NewDecoder(io.LimitReader(buf, int64(hdr.PhasesSize))).Decode(&table); err != nil {
		return fmt.Errorf("%w: phases: %v", ErrFormat, err)
	}
	if pad := padding(int(hdr.PhasesSize)); pad > 0 {
		if _, err := buf.Discard(pad); err != nil {
			return fmt.Errorf("%w: padding: %v", ErrFormat, err)
		}
	}

	for {
		var s sample
		if err := binary.Read(buf, binary.LittleEndian, &s); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%w: sample: %v", ErrFormat, err)
		}
		info, ok := table[s.Phase]
		if !ok {
			return fmt.Errorf("%w: unknown phase %d", ErrFormat, s.Phase)
		}
		if err := fn(info.Name, info.Flags, time.Duration(s.Duration)); err != nil {
			return err
		}
	}
}
