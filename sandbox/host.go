package sandbox

/*
#include <stdlib.h>
#include "luabox.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"sort"
	"unsafe"

	"github.com/aarzilli/golua/lua"
)

// HostFunc is a Lua function implemented in Go.
//
// It receives the call's arguments and returns the values handed back to the
// script. A non-nil error is raised as a Lua error at the caller's position.
// Results may be nil, bool, string, []byte, any Go integer or float, []any or
// map[string]any.
//
// A HostFunc never touches the VM directly; it must not call back into Lua.
type HostFunc func(args Args) ([]any, error)

// Arg is one argument of a host function call.
type Arg struct {
	Type     lua.LuaValType
	TypeName string
	Bool     bool
	Number   float64
	IsNumber bool   // Number holds the argument, or the number a string converts to
	Text     string // the argument as tostring renders it
}

// Value returns the argument as a Go value: nil, bool, float64 or string.
// Tables, functions and other reference types become nil.
func (a Arg) Value() any {
	switch a.Type {
	case lua.LUA_TBOOLEAN:
		return a.Bool
	case lua.LUA_TNUMBER:
		return a.Number
	case lua.LUA_TSTRING:
		return a.Text
	default:
		return nil
	}
}

// Args are the arguments of a host function call. Positions are 1-based like
// in Lua.
type Args []Arg

// Get returns argument n, or an argument of type LUA_TNONE when the call
// passed fewer.
func (a Args) Get(n int) Arg {
	if n < 1 || n > len(a) {
		return Arg{Type: lua.LUA_TNONE, TypeName: "no value"}
	}
	return a[n-1]
}

// CheckString returns argument n as a string. Numbers are converted the way
// Lua does.
func (a Args) CheckString(n int) (string, error) {
	arg := a.Get(n)
	switch arg.Type {
	case lua.LUA_TSTRING, lua.LUA_TNUMBER:
		return arg.Text, nil
	default:
		return "", a.ArgError(n, "string expected, got "+arg.TypeName)
	}
}

// CheckNumber returns argument n as a number. Numeric strings are converted.
func (a Args) CheckNumber(n int) (float64, error) {
	arg := a.Get(n)
	if !arg.IsNumber {
		return 0, a.ArgError(n, "number expected, got "+arg.TypeName)
	}
	return arg.Number, nil
}

// ArgError builds the error raised for a bad argument n.
func (Args) ArgError(n int, msg string) error {
	return &ArgError{N: n, Msg: msg}
}

// ArgError reports a bad argument. The name of the host function is added
// when it is raised in Lua.
type ArgError struct {
	N   int
	Msg string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("bad argument #%d (%s)", e.N, e.Msg)
}

type hostFunc struct {
	name string
	fn   HostFunc
}

// Register sets fn as the global name of the VM's shared table, where an
// environment builder can pick it up.
func (s *Sandbox) Register(name string, fn HostFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	s.hosts = append(s.hosts, hostFunc{name: name, fn: fn})
	id := len(s.hosts) - 1
	if status := s.enforce(func() C.int { return C.luabox_register(s.cstate(), cname, C.int(id)) }); status != 0 {
		return fmt.Errorf("failed to register %s: %w", name, s.popError(status))
	}
	return nil
}

const maxResultDepth = 32

// Result operations, in the order of LUABOX_OP_* in luabox.h.
const (
	opNil = iota
	opBoolean
	opNumber
	opString
	opTable
	opRawSet
)

type hostOp struct {
	kind    int
	boolean bool
	number  float64
	str     string
	narr    int
	nrec    int
}

// hostCall holds the results of the current host function until luabox.c
// has replayed them onto the Lua stack.
type hostCall struct {
	ops []hostOp
	pos int
}

func (c *hostCall) reset() {
	c.ops = c.ops[:0]
	c.pos = 0
}

func (c *hostCall) next() (hostOp, bool) {
	if c.pos >= len(c.ops) {
		return hostOp{}, false
	}
	op := c.ops[c.pos]
	c.pos++
	return op, true
}

func (c *hostCall) current() hostOp {
	return c.ops[c.pos-1]
}

func (c *hostCall) push(op hostOp) {
	c.ops = append(c.ops, op)
}

func (c *hostCall) encode(v any, depth int) error {
	if depth > maxResultDepth {
		return errors.New("result nested too deeply")
	}

	switch v := v.(type) {
	case nil:
		c.push(hostOp{kind: opNil})
	case bool:
		c.push(hostOp{kind: opBoolean, boolean: v})
	case string:
		c.push(hostOp{kind: opString, str: v})
	case []byte:
		c.push(hostOp{kind: opString, str: string(v)})
	case int:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case int8:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case int16:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case int32:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case int64:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case uint:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case uint8:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case uint16:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case uint32:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case uint64:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case float32:
		c.push(hostOp{kind: opNumber, number: float64(v)})
	case float64:
		c.push(hostOp{kind: opNumber, number: v})
	case []any:
		c.push(hostOp{kind: opTable, narr: len(v)})
		for i, item := range v {
			c.push(hostOp{kind: opNumber, number: float64(i + 1)})
			if err := c.encode(item, depth+1); err != nil {
				return err
			}
			c.push(hostOp{kind: opRawSet})
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		c.push(hostOp{kind: opTable, nrec: len(v)})
		for _, k := range keys {
			c.push(hostOp{kind: opString, str: k})
			if err := c.encode(v[k], depth+1); err != nil {
				return err
			}
			c.push(hostOp{kind: opRawSet})
		}
	default:
		return fmt.Errorf("cannot return %T to Lua", v)
	}
	return nil
}

// callHost runs host function id. It returns the number of results, or -1
// with the error message queued as the only result.
func (s *Sandbox) callHost(id int, cargs []C.luabox_arg) (nresults int) {
	s.call.reset()
	host := s.hosts[id]

	fail := func(err error) int {
		var argErr *ArgError
		msg := err.Error()
		if errors.As(err, &argErr) {
			msg = fmt.Sprintf("bad argument #%d to '%s' (%s)", argErr.N, host.name, argErr.Msg)
		}
		s.call.reset()
		s.call.push(hostOp{kind: opString, str: msg})
		return -1
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("host function %s panicked: %v", host.name, r)
			s.onPanic(err)
			nresults = fail(err)
		}
	}()

	args := make(Args, len(cargs))
	for i, a := range cargs {
		args[i] = Arg{
			Type:     lua.LuaValType(a.kind),
			TypeName: C.GoString(a.type_name),
			Bool:     a.boolean != 0,
			Number:   float64(a.number),
			IsNumber: a.is_number != 0,
			Text:     C.GoStringN(a.text, C.int(a.len)),
		}
	}

	results, err := host.fn(args)
	if err != nil {
		return fail(err)
	}
	for _, r := range results {
		if err := s.call.encode(r, 0); err != nil {
			return fail(fmt.Errorf("%s: %w", host.name, err))
		}
	}
	return len(results)
}
