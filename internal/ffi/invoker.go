// Package ffi calls generated 32-bit code with the cdecl convention and
// resolves symbols from native libraries.
package ffi

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform is returned where native 32-bit calls cannot be made.
var ErrUnsupportedPlatform = errors.New("native 32-bit calls are not supported on this platform")

// ErrArity is returned when a Callable receives the wrong number of arguments.
var ErrArity = errors.New("wrong number of arguments")

// MaxArgs is the largest number of stack arguments a Callable accepts.
const MaxArgs = 8

// Kind is the type of a cdecl argument or return value. Every kind occupies
// one 32-bit stack slot.
type Kind uint8

const (
	Void Kind = iota
	Int32
	Uint32
	Pointer
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Pointer:
		return "pointer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Invoker turns a code address into something Go can call.
type Invoker interface {
	MakeCallable(addr uint32, ret Kind, args ...Kind) (Callable, error)
}

// Callable invokes a cdecl function. Arguments are pushed right to left and
// the caller pops them. The result is EAX, or zero for a Void function.
type Callable interface {
	Call(args ...uint32) (uint32, error)
}

// NewInvoker returns the invoker for the running platform.
func NewInvoker() Invoker {
	return newInvoker()
}

type signature struct {
	ret  Kind
	args []Kind
}

func newSignature(addr uint32, ret Kind, args []Kind) (signature, error) {
	if addr == 0 {
		return signature{}, fmt.Errorf("make callable: nil function address")
	}
	if len(args) > MaxArgs {
		return signature{}, fmt.Errorf("make callable: %d arguments, at most %d supported", len(args), MaxArgs)
	}
	if ret > Pointer {
		return signature{}, fmt.Errorf("make callable: unknown return kind %s", ret)
	}
	for idx, k := range args {
		if k == Void || k > Pointer {
			return signature{}, fmt.Errorf("make callable: argument %d has kind %s", idx, k)
		}
	}
	return signature{ret: ret, args: append([]Kind(nil), args...)}, nil
}

func (s signature) check(args []uint32) error {
	if len(args) != len(s.args) {
		return fmt.Errorf("%w: got %d, want %d", ErrArity, len(args), len(s.args))
	}
	return nil
}

func (s signature) result(eax uint32) uint32 {
	if s.ret == Void {
		return 0
	}
	return eax
}
