package asm

import (
	"errors"
	"fmt"
)

// SymbolProvider resolves names the local symbol table does not know.
// Absence must be reported with an error wrapping ErrSymbolNotFound; any other
// error is treated as a real failure and stops resolution.
type SymbolProvider interface {
	LookupSymbol(name string) (uint32, error)
}

// SymbolMap is a SymbolProvider backed by a fixed set of addresses.
type SymbolMap map[string]uint32

var _ SymbolProvider = SymbolMap(nil)

func (m SymbolMap) LookupSymbol(name string) (uint32, error) {
	addr, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
	}
	return addr, nil
}

// Resolver binds names to absolute addresses using a local table followed by
// an ordered chain of providers.
type Resolver struct {
	local     map[string]uint32
	providers []SymbolProvider
}

// AddSymbol binds name to addr in the local table, replacing any earlier
// binding.
func (r *Resolver) AddSymbol(name string, addr uint32) {
	if r.local == nil {
		r.local = make(map[string]uint32)
	}
	r.local[name] = addr
}

// AddProvider appends p to the provider chain.
func (r *Resolver) AddProvider(p SymbolProvider) {
	r.providers = append(r.providers, p)
}

// Resolve looks name up locally, then in each provider in registration order.
func (r *Resolver) Resolve(name string) (uint32, error) {
	if addr, ok := r.local[name]; ok {
		return addr, nil
	}
	for idx, p := range r.providers {
		addr, err := p.LookupSymbol(name)
		switch {
		case err == nil:
			return addr, nil
		case errors.Is(err, ErrSymbolNotFound):
			continue
		default:
			return 0, fmt.Errorf("resolve %q with provider %d: %w", name, idx, err)
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
}
