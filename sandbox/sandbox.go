package sandbox

/*
#include <stdlib.h>
#include "luabox.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"io"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/aarzilli/golua/lua"
	"go.uber.org/zap"
)

// Default directory names.
const (
	DefaultLuasrcDir  = "luasrc"
	DefaultSandboxDir = "sandbox"
)

// Globals injected into every sandbox before any script runs.
const (
	GlobalName    = "SANDBOX_NAME"
	GlobalOptions = "SANDBOX_OPTIONS"
)

// Config holds the limits and directories a Sandbox is created with.
// A zero MaxMemory or MaxInstructions means unlimited.
type Config struct {
	MaxInstructions int64
	MaxMemory       int64
	LuasrcDir       string
	SandboxDir      string
}

// DefaultConfig returns an unlimited configuration with the default directories.
func DefaultConfig() Config {
	return Config{
		LuasrcDir:  DefaultLuasrcDir,
		SandboxDir: DefaultSandboxDir,
	}
}

// Sandbox owns one Lua 5.1 VM together with its memory quota and instruction
// trap.
//
// A Sandbox runs scripts one at a time. Distinct sandboxes share no state and
// can be used from different goroutines.
type Sandbox struct {
	state  *lua.State
	handle cgo.Handle

	name   string
	config Config
	logger *zap.Logger
	output io.Writer

	quota     *Quota
	enforcing bool
	trap      *instructionTrap

	hosts []hostFunc
	call  hostCall

	onPanic func(error)

	mu     sync.Mutex
	closed bool
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// WithOutput sets the writer host primitives print to.
func WithOutput(w io.Writer) Option {
	return func(s *Sandbox) {
		s.output = w
	}
}

// WithPanicHandler sets the handler called when Go code driving the VM
// panics.
func WithPanicHandler(fn func(error)) Option {
	return func(s *Sandbox) {
		s.onPanic = fn
	}
}

// New creates a sandbox called name. The memory quota and instruction trap are
// installed only for non-zero limits, and cfg.LuasrcDir is put in front of
// package.path.
//
// The quota covers the whole VM: the memory in use once the standard
// libraries are open is charged first, and New fails with ErrQuotaExceeded
// when even that does not fit.
func New(name string, cfg Config, opts ...Option) (*Sandbox, error) {
	s := &Sandbox{
		name:   name,
		config: cfg,
		logger: zap.NewNop(),
		output: io.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onPanic == nil {
		s.onPanic = func(err error) {
			s.logger.Error("PANIC: unprotected error in call to Lua API",
				zap.String("sandbox", s.name),
				zap.Error(err))
		}
	}

	s.state = lua.NewState()
	if s.state == nil {
		return nil, &Error{Kind: KindSetup, Stage: StageUnloaded, Err: errors.New("cannot create Lua state")}
	}
	s.handle = cgo.NewHandle(s)

	if err := s.setup(); err != nil {
		s.release()
		return nil, &Error{Kind: KindSetup, Stage: StageUnloaded, Err: err}
	}

	s.logger.Debug("sandbox created",
		zap.String("sandbox", s.name),
		zap.Int64("max_memory", cfg.MaxMemory),
		zap.Int64("max_instructions", cfg.MaxInstructions),
		zap.String("luasrc_dir", cfg.LuasrcDir))

	return s, nil
}

func (s *Sandbox) setup() error {
	L := s.cstate()

	if status := C.luabox_open(L, C.uintptr_t(s.handle)); status != 0 {
		return fmt.Errorf("failed to open standard libraries: %w", s.popError(status))
	}

	if s.config.MaxMemory > 0 {
		if status := C.luabox_collect(L); status != 0 {
			return s.popError(status)
		}
		s.quota = NewQuota(s.config.MaxMemory, s.logger)
		if err := s.quota.Alloc(int64(C.luabox_memory(L)), nil); err != nil {
			return fmt.Errorf("charging the initial state: %w", err)
		}
		C.luabox_set_allocator(L, C.uintptr_t(s.handle))
	}

	strs := make([]*C.char, 0, 5)
	cstring := func(str string) *C.char {
		cs := C.CString(str)
		strs = append(strs, cs)
		return cs
	}
	defer func() {
		for _, cs := range strs {
			C.free(unsafe.Pointer(cs))
		}
	}()

	setup := C.luabox_setup_t{
		name_global:      cstring(GlobalName),
		options_global:   cstring(GlobalOptions),
		name:             cstring(s.name),
		luasrc_dir:       cstring(s.config.LuasrcDir),
		sandbox_dir:      cstring(s.config.SandboxDir),
		max_instructions: C.lua_Number(s.config.MaxInstructions),
		max_memory:       C.lua_Number(s.config.MaxMemory),
	}
	if status := s.enforce(func() C.int { return C.luabox_setup(L, &setup) }); status != 0 {
		return fmt.Errorf("error setting globals and package.path: %w", s.popError(status))
	}

	if s.config.MaxInstructions > 0 {
		s.trap = newInstructionTrap(s.config.MaxInstructions)
		s.trap.arm(L)
	}
	return nil
}

// popError pops the error object left by a failed protected call.
func (s *Sandbox) popError(status C.int) error {
	msg := errorMessage(s.state, -1)
	trapped := C.luabox_is_trap(s.cstate(), -1) != 0
	s.state.Pop(1)

	switch {
	case status == C.LUA_ERRMEM:
		return &scriptError{msg: msg, cause: ErrQuotaExceeded}
	case trapped:
		return &scriptError{msg: ErrInstructionLimit.Error(), cause: ErrInstructionLimit}
	default:
		return errors.New(msg)
	}
}

// Protect calls fn with the VM, converting a panic into an error that is also
// passed to the panic handler. fn must stick to stack operations that cannot
// raise Lua errors.
func (s *Sandbox) Protect(fn func(L *lua.State) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("lua panic: %v", v)
			}
			s.onPanic(err)
		}
	}()
	return fn(s.state)
}

// State returns the raw VM handle. It is meant for inspecting the VM between
// runs.
func (s *Sandbox) State() *lua.State {
	return s.state
}

// Global returns the VM global name converted like a script result.
func (s *Sandbox) Global(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.state.PushString(name)
	s.state.RawGet(lua.LUA_GLOBALSINDEX)
	defer s.state.Pop(1)
	return goValue(s.state, -1)
}

// Name returns the sandbox identity injected as SANDBOX_NAME.
func (s *Sandbox) Name() string {
	return s.name
}

// Config returns the configuration the sandbox was created with.
func (s *Sandbox) Config() Config {
	return s.config
}

// Output returns the writer host primitives print to.
func (s *Sandbox) Output() io.Writer {
	return s.output
}

// QuotaRemaining returns the bytes left in the quota. ok is false when memory
// is unlimited.
func (s *Sandbox) QuotaRemaining() (remaining int64, ok bool) {
	if s.quota == nil {
		return 0, false
	}
	return s.quota.Remaining(), true
}

// Close releases the VM. Every block it still holds is credited back to the
// quota. Closing twice is a no-op.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.release()
	s.closed = true

	s.logger.Debug("sandbox closed", zap.String("sandbox", s.name))
	return nil
}

func (s *Sandbox) release() {
	s.state.Close()
	s.handle.Delete()
}
