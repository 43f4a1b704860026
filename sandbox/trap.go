package sandbox

/*
#include "luabox.h"
*/
import "C"

import (
	"math"
)

// instructionTrap raises a catchable "instruction limit reached" error every
// limit VM instructions. The count hook lives in luabox.c; coroutines inherit
// it from the thread that creates them and count on their own.
//
// The error object is a userdata that prints as the message, so a failure can
// be attributed to the trap without trusting its text.
type instructionTrap struct {
	limit int
	fired int64
}

func newInstructionTrap(limit int64) *instructionTrap {
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	return &instructionTrap{limit: int(limit)}
}

// arm installs the hook on L, which also restarts its count, and clears the
// fired counter.
func (t *instructionTrap) arm(L *C.lua_State) {
	t.fired = 0
	C.luabox_set_trap(L, C.int(t.limit))
}

func (t *instructionTrap) fire() {
	t.fired++
}

// Fired returns how many times the trap fired since it was last armed.
func (t *instructionTrap) Fired() int64 {
	return t.fired
}
