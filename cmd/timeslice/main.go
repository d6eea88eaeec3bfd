package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tinyrange/jitgen/internal/timeslice"
)

type phaseSummary struct {
	Name  string
	Flags timeslice.Flags
	Count int
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

func (s *phaseSummary) String() string {
	return fmt.Sprintf("% 12s flags=% 16s count=% 6d sum=% 14s min=% 14s max=% 14s avg=% 14s",
		s.Name, s.Flags, s.Count, s.Sum, s.Min, s.Max, s.Sum/time.Duration(s.Count))
}

func (s *phaseSummary) Add(d time.Duration) {
	s.Count++
	s.Sum += d
	if s.Count == 1 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

func summarise(r io.Reader) ([]*phaseSummary, error) {
	byName := map[string]*phaseSummary{}
	var order []*phaseSummary
	err := timeslice.ReadAll(r, func(name string, flags timeslice.Flags, d time.Duration) error {
		s, ok := byName[name]
		if !ok {
			s = &phaseSummary{Name: name, Flags: flags}
			byName[name] = s
			order = append(order, s)
		}
		s.Add(d)
		return nil
	})
	return order, err
}

func run() error {
	sums := flag.Bool("sums", false, "print per-phase totals instead of every sample")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: timeslice [-sums] <profile>\n\nReads a profile written by jitgen -profile.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	if *sums {
		phases, err := summarise(f)
		if err != nil {
			return err
		}
		for _, s := range phases {
			fmt.Println(s)
		}
		return nil
	}

	return timeslice.ReadAll(f, func(name string, flags timeslice.Flags, d time.Duration) error {
		fmt.Printf("%s %s %s\n", name, flags, d)
		return nil
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "timeslice: %v\n", err)
		os.Exit(1)
	}
}
