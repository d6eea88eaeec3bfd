//go:build linux

package execmem

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mmap allocates anonymous private mappings with read, write and execute
// permission. On 64-bit hosts it asks the kernel for a low mapping where the
// architecture allows it.
type Mmap struct {
	Logger *slog.Logger
}

var _ Allocator = (*Mmap)(nil)

func (m *Mmap) logger() *slog.Logger {
	if m == nil || m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Mmap) Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate executable region: invalid size %d", size)
	}
	size = roundUp(size, unix.Getpagesize())

	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON|lowMappingFlag)
	if err != nil {
		return nil, fmt.Errorf("mmap executable region of %d bytes: %w", size, err)
	}

	addr := uint64(uintptr(unsafe.Pointer(&mem[0])))
	if addr+uint64(size) > 1<<32 {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("%w: mapping at %#x", ErrAddressRange, addr)
	}

	log := m.logger()
	log.Debug("mapped executable region", "base", fmt.Sprintf("%#x", addr), "size", size)
	return &Region{
		mem:     mem,
		base:    uint32(addr),
		release: unix.Munmap,
		log:     log,
	}, nil
}
