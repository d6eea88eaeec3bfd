//go:build linux && 386

package ffi

type nativeInvoker struct{}

func newInvoker() Invoker { return nativeInvoker{} }

func (nativeInvoker) MakeCallable(addr uint32, ret Kind, args ...Kind) (Callable, error) {
	sig, err := newSignature(addr, ret, args)
	if err != nil {
		return nil, err
	}
	return &nativeCallable{addr: addr, sig: sig}, nil
}

type nativeCallable struct {
	addr uint32
	sig  signature
}

func (c *nativeCallable) Call(args ...uint32) (uint32, error) {
	if err := c.sig.check(args); err != nil {
		return 0, err
	}
	var argv [MaxArgs]uint32
	copy(argv[:], args)
	eax := callCdecl(uintptr(c.addr), &argv[0], uintptr(len(args)))
	return c.sig.result(eax), nil
}

// callCdecl copies n words from args onto a fresh stack area and calls fn.
//
//go:noescape
func callCdecl(fn uintptr, args *uint32, n uintptr) uint32
