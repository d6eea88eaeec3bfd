//go:build (darwin || linux) && (amd64 || arm64)

package ffi

import (
	"fmt"
	"math"

	"github.com/ebitengine/purego"
	"github.com/tinyrange/jitgen/internal/asm"
	"github.com/tinyrange/jitgen/internal/execmem"
)

// NativeSymbols resolves names against a dynamically loaded library.
// Libraries on 64-bit hosts normally load above 4 GiB, so lookups there
// report ErrAddressRange.
// TODO: build for linux/386 with cgo so resolved symbols can be called from
// generated code; purego's cgo-free shim does not support 386.
type NativeSymbols struct {
	path   string
	handle uintptr
}

var _ asm.SymbolProvider = (*NativeSymbols)(nil)

// OpenNative loads the library at path, such as "libc.so.6".
func OpenNative(path string) (*NativeSymbols, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open native library %q: %w", path, err)
	}
	return &NativeSymbols{path: path, handle: handle}, nil
}

// LookupSymbol returns the address of name. Addresses that do not fit in
// 32 bits fail with execmem.ErrAddressRange.
func (n *NativeSymbols) LookupSymbol(name string) (uint32, error) {
	addr, err := purego.Dlsym(n.handle, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %q in %q: %v", asm.ErrSymbolNotFound, name, n.path, err)
	}
	if uint64(addr) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %q resolves to %#x", execmem.ErrAddressRange, name, addr)
	}
	return uint32(addr), nil
}

// Close unloads the library.
func (n *NativeSymbols) Close() error {
	return purego.Dlclose(n.handle)
}
