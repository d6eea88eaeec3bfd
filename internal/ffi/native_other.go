//go:build !((darwin || linux) && (amd64 || arm64))

package ffi

import (
	"fmt"

	"github.com/tinyrange/jitgen/internal/asm"
)

type NativeSymbols struct{}

var _ asm.SymbolProvider = (*NativeSymbols)(nil)

func OpenNative(path string) (*NativeSymbols, error) {
	return nil, fmt.Errorf("open native library %q: %w", path, ErrUnsupportedPlatform)
}

func (n *NativeSymbols) LookupSymbol(name string) (uint32, error) {
	return 0, fmt.Errorf("lookup %q: %w", name, ErrUnsupportedPlatform)
}

func (n *NativeSymbols) Close() error { return nil }
