package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tinyrange/jitgen/internal/asm"
	"github.com/tinyrange/jitgen/internal/asm/x86"
	"github.com/tinyrange/jitgen/internal/execmem"
	"github.com/tinyrange/jitgen/internal/ffi"
	"github.com/tinyrange/jitgen/internal/listing"
	"github.com/tinyrange/jitgen/internal/timeslice"
	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/term"
)

func parseArgs(text string) ([]uint32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var out []uint32
	for _, field := range strings.Split(text, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(field), 0, 64)
		if err != nil || v < -1<<31 || v > 1<<32-1 {
			return nil, fmt.Errorf("invalid argument %q", field)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func disassemble(code []byte, base uint32) {
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 32)
		if err != nil {
			fmt.Printf("%08x  %-20x  (bad)\n", base+uint32(off), code[off])
			off++
			continue
		}
		raw := hex.EncodeToString(code[off : off+inst.Len])
		fmt.Printf("%08x  %-20s  %s\n", base+uint32(off), raw, x86asm.IntelSyntax(inst, uint64(base)+uint64(off), nil))
		off += inst.Len
	}
}

func run() error {
	out := flag.String("o", "", "write the linked code to this file (- for stdout)")
	baseFlag := flag.String("base", "", "load address of the code (overrides the listing)")
	capacity := flag.Int("cap", 4096, "code buffer capacity in bytes")
	execute := flag.Bool("run", false, "execute the code and print EAX (linux/386 only)")
	argList := flag.String("args", "", "comma-separated 32-bit arguments for -run")
	disasm := flag.Bool("d", false, "print a disassembly instead of hex")
	lib := flag.String("lib", "", "resolve unknown symbols from this native library")
	verbose := flag.Bool("v", false, "enable debug logging")
	profile := flag.String("profile", "", "write a phase timing profile to this file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `jitgen - assemble an i386 listing

USAGE:
  jitgen [flags] <listing.yaml>

FLAGS:
  -o FILE      Write the raw linked code to FILE, or to stdout with -
  -base ADDR   Load address used for calls and symbols (default: listing base)
  -cap N       Code buffer capacity in bytes (default: 4096)
  -run         Map the code executable and call it (linux/386 only)
  -args LIST   Comma-separated arguments passed on the stack with -run
  -d           Print a disassembly of the emitted code
  -lib PATH    Resolve symbols missing from the listing in a native library
  -v           Debug logging
  -profile F   Record phase timings to F (read with the timeslice tool)

EXAMPLES:
  jitgen add.yaml                   Print the code as hex
  jitgen -d -base 0x8000 add.yaml   Disassemble as if loaded at 0x8000
  jitgen -run -args 1,2 add.yaml    Call the code with two arguments
`)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		defer f.Close()
		p, err := timeslice.Start(f)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				log.Warn("write profile", "error", err)
			}
		}()
	}
	sw := timeslice.NewStopwatch()

	l, err := listing.Load(flag.Arg(0))
	if err != nil {
		return err
	}
	sw.Lap(timeslice.Load)

	args, err := parseArgs(*argList)
	if err != nil {
		return err
	}

	var (
		mem    []byte
		base   = l.Base
		region *execmem.Region
	)
	if *baseFlag != "" {
		v, err := strconv.ParseUint(*baseFlag, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid -base %q: %w", *baseFlag, err)
		}
		base = uint32(v)
	}
	if *execute {
		region, err = (&execmem.Mmap{Logger: log}).Allocate(*capacity)
		if err != nil {
			return fmt.Errorf("allocate code region: %w", err)
		}
		defer region.Close()
		mem, base = region.Bytes(), region.Base()
		sw.Lap(timeslice.Map)
	} else {
		if *capacity <= 0 {
			return fmt.Errorf("invalid -cap %d", *capacity)
		}
		mem = make([]byte, *capacity)
	}

	s, _ := x86.NewSession(mem, base, asm.WithLogger(log))
	if *lib != "" {
		native, err := ffi.OpenNative(*lib)
		if err != nil {
			return err
		}
		defer native.Close()
		s.AddProvider(native)
	}
	if err := l.Assemble(s); err != nil {
		return err
	}
	sw.Lap(timeslice.Assemble)
	code := s.Buffer().Bytes()
	log.Debug("assembled listing", "path", flag.Arg(0), "size", len(code), "base", fmt.Sprintf("%#x", base))

	switch {
	case *out == "-":
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("refusing to write raw code to a terminal")
		}
		if _, err := s.Buffer().WriteTo(os.Stdout); err != nil {
			return fmt.Errorf("write code: %w", err)
		}
	case *disasm:
		disassemble(code, base)
	default:
		fmt.Println(hex.EncodeToString(code))
	}

	if *out != "" && *out != "-" {
		if err := s.Buffer().Save(*out); err != nil {
			return fmt.Errorf("save code: %w", err)
		}
	}

	if *execute {
		kinds := make([]ffi.Kind, len(args))
		for idx := range kinds {
			kinds[idx] = ffi.Uint32
		}
		fn, err := ffi.NewInvoker().MakeCallable(base, ffi.Int32, kinds...)
		if err != nil {
			return err
		}
		sw = timeslice.NewStopwatch()
		eax, err := fn.Call(args...)
		if err != nil {
			return err
		}
		sw.Lap(timeslice.Call)
		result := os.Stdout
		if *out == "-" {
			result = os.Stderr
		}
		fmt.Fprintf(result, "eax=%d (%#x)\n", int32(eax), eax)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jitgen: %v\n", err)
		os.Exit(1)
	}
}
