package sandbox

/*
#cgo linux CFLAGS: -I/usr/include/lua5.1
#cgo linux LDFLAGS: -llua5.1
#cgo darwin pkg-config: lua5.1

#include <stdlib.h>
#include "luabox.h"
*/
import "C"

import (
	"errors"
	"runtime/cgo"
	"unsafe"
)

var errReallocFailed = errors.New("realloc failed")

func sandboxOf(handle C.uintptr_t) *Sandbox {
	return cgo.Handle(handle).Value().(*Sandbox)
}

//export luaboxAlloc
func luaboxAlloc(handle C.uintptr_t, ptr unsafe.Pointer, osize, nsize C.size_t) unsafe.Pointer {
	return sandboxOf(handle).realloc(ptr, int64(osize), int64(nsize))
}

//export luaboxTrapFired
func luaboxTrapFired(handle C.uintptr_t) {
	sandboxOf(handle).trap.fire()
}

//export luaboxCallHost
func luaboxCallHost(handle C.uintptr_t, id C.int, args *C.luabox_arg, nargs C.int) C.int {
	return C.int(sandboxOf(handle).callHost(int(id), unsafe.Slice(args, int(nargs))))
}

//export luaboxNextOp
func luaboxNextOp(handle C.uintptr_t, op *C.luabox_op) C.int {
	next, ok := sandboxOf(handle).call.next()
	if !ok {
		return 0
	}
	*op = C.luabox_op{
		kind:   C.int(next.kind),
		number: C.lua_Number(next.number),
		len:    C.size_t(len(next.str)),
		narr:   C.int(next.narr),
		nrec:   C.int(next.nrec),
	}
	if next.boolean {
		op.boolean = 1
	}
	return 1
}

//export luaboxCopyString
func luaboxCopyString(handle C.uintptr_t, dst *C.char, n C.size_t) {
	str := sandboxOf(handle).call.current().str
	copy(unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n)), str)
}

// realloc is the VM allocator installed when a quota is configured. Inside a
// protected call growth beyond the quota is refused and Lua raises "not
// enough memory". Outside one Lua cannot survive a refusal, so the block is
// granted and overdraws the quota instead.
func (s *Sandbox) realloc(ptr unsafe.Pointer, osize, nsize int64) unsafe.Pointer {
	if nsize == 0 {
		_ = s.quota.Realloc(osize, 0, func() error {
			C.free(ptr)
			return nil
		})
		return nil
	}

	var block unsafe.Pointer
	resize := func() error {
		block = C.realloc(ptr, C.size_t(nsize))
		if block == nil {
			return errReallocFailed
		}
		return nil
	}

	charge := s.quota.Overdraw
	if s.enforcing {
		charge = s.quota.Realloc
	}
	if err := charge(osize, nsize, resize); err != nil {
		return nil
	}
	return block
}

// enforce runs a protected call into luabox.c with quota refusals enabled.
func (s *Sandbox) enforce(call func() C.int) C.int {
	s.enforcing = true
	defer func() { s.enforcing = false }()
	return call()
}

// cstate returns the lua_State behind the golua handle.
func (s *Sandbox) cstate() *C.lua_State {
	return (*C.lua_State)(unsafe.Pointer(s.state.GetState()))
}
