// Package execmem allocates memory that generated code can be written into and
// executed from.
package execmem

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrAddressRange reports a mapping or symbol address that does not fit
	// in 32 bits.
	ErrAddressRange = errors.New("address outside the 32-bit range")
	// ErrUnsupportedPlatform is returned where executable mappings are not
	// implemented.
	ErrUnsupportedPlatform = errors.New("executable memory is not supported on this platform")
)

// Allocator hands out writable, executable regions.
type Allocator interface {
	Allocate(size int) (*Region, error)
}

// Region is a page-aligned mapping that is readable, writable and
// executable at once. Close releases it; code in it must not run afterwards.
type Region struct {
	mem     []byte
	base    uint32
	release func([]byte) error
	log     *slog.Logger
}

// Bytes returns the whole mapping, or nil once the region is closed.
func (r *Region) Bytes() []byte { return r.mem }

// Base is the address of the first byte of the mapping.
func (r *Region) Base() uint32 { return r.base }

// Size is the mapped length, a multiple of the page size.
func (r *Region) Size() int { return len(r.mem) }

// Close unmaps the region. Closing twice is a no-op.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem = nil
	if err := r.release(mem); err != nil {
		return err
	}
	r.log.Debug("released executable region", "base", fmt.Sprintf("%#x", r.base), "size", len(mem))
	return nil
}

func roundUp(n, page int) int {
	return (n + page - 1) / page * page
}
