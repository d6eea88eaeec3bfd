//go:build !(linux && 386)

package ffi

import "fmt"

type unsupportedInvoker struct{}

func newInvoker() Invoker { return unsupportedInvoker{} }

func (unsupportedInvoker) MakeCallable(addr uint32, ret Kind, args ...Kind) (Callable, error) {
	if _, err := newSignature(addr, ret, args); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("make callable at %#x: %w", addr, ErrUnsupportedPlatform)
}
