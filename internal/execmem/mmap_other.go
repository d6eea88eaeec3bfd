//go:build !linux

package execmem

import "log/slog"

type Mmap struct {
	Logger *slog.Logger
}

var _ Allocator = (*Mmap)(nil)

func (m *Mmap) Allocate(size int) (*Region, error) {
	return nil, ErrUnsupportedPlatform
}
