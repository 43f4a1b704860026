package sandbox

/*
#include <stdlib.h>
#include "luabox.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/aarzilli/golua/lua"
	"go.uber.org/zap"
)

// Stage is the state of one script invocation.
type Stage int

const (
	StageUnloaded Stage = iota
	StageLoaded
	StageEnvironmentBound
	StageRunning
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageUnloaded:
		return "unloaded"
	case StageLoaded:
		return "loaded"
	case StageEnvironmentBound:
		return "environment_bound"
	case StageRunning:
		return "running"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// invocation is a single run of a script. It is discarded after Run returns.
type invocation struct {
	sandbox     *Sandbox
	script      string
	environment string
	stage       Stage
}

// Run validates and loads script, binds it to a fresh environment and calls it
// under protected execution. If environment is not empty it names a Lua file
// whose single return value becomes the script's global table; otherwise the
// script starts from an empty table. The builder itself is not validated.
// Side effects made before a failure are not rolled back.
//
// On success Run returns the script's first return value converted to Go (see
// goValue). A full garbage collection follows every run, so the quota reflects
// only what is still reachable.
func (s *Sandbox) Run(script, environment string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &Error{Kind: KindSetup, Stage: StageUnloaded, Path: script, Err: ErrClosed}
	}

	if s.trap != nil {
		s.trap.arm(s.cstate())
	}
	defer s.collect()

	inv := &invocation{
		sandbox:     s,
		script:      script,
		environment: environment,
		stage:       StageUnloaded,
	}
	ret, err := inv.run()
	if err != nil {
		s.logger.Error("error running script",
			zap.String("sandbox", s.name),
			zap.String("script", script),
			zap.String("environment", environment),
			zap.Stringer("stage", StageOf(err)),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err))
		return nil, err
	}
	return ret, nil
}

// collect frees everything the invocation left unreachable.
func (s *Sandbox) collect() {
	if status := C.luabox_collect(s.cstate()); status != 0 {
		err := s.popError(status)
		s.logger.Warn("garbage collection failed", zap.String("sandbox", s.name), zap.Error(err))
	}
}

func (inv *invocation) run() (any, error) {
	s := inv.sandbox

	if err := ValidateScript(inv.script); err != nil {
		inv.stage = StageFailed
		return nil, err
	}

	run := C.luabox_run_t{script: C.CString(inv.script)}
	defer C.free(unsafe.Pointer(run.script))
	if inv.environment != "" {
		run.environment = C.CString(inv.environment)
		defer C.free(unsafe.Pointer(run.environment))
	}

	status := s.enforce(func() C.int { return C.luabox_run(s.cstate(), &run) })
	inv.stage = Stage(run.stage)
	if status != 0 {
		return nil, inv.fail(status, &run)
	}

	ret := s.takeRef(int(run.result))
	inv.stage = StageCompleted
	return ret, nil
}

// takeRef converts the registry reference ref and releases it.
func (s *Sandbox) takeRef(ref int) any {
	if ref == lua.LUA_REFNIL || ref == lua.LUA_NOREF {
		return nil
	}
	L := s.state
	L.RawGeti(lua.LUA_REGISTRYINDEX, ref)
	ret := goValue(L, -1)
	L.Pop(1)
	L.Unref(lua.LUA_REGISTRYINDEX, ref)
	return ret
}

// fail moves the invocation to StageFailed and classifies the error object a
// failed luabox_run left on the stack. Memory errors are recognised by their
// status and trap errors by their identity, never by message text.
func (inv *invocation) fail(status C.int, run *C.luabox_run_t) error {
	s := inv.sandbox
	stage := inv.stage
	inv.stage = StageFailed

	kind, path := KindRuntime, inv.script
	switch run.step {
	case C.LUABOX_STEP_LOAD_SCRIPT:
		kind = KindInvalidScript
	case C.LUABOX_STEP_LOAD_ENVIRONMENT:
		kind, path = KindInvalidScript, inv.environment
	case C.LUABOX_STEP_BUILD_ENVIRONMENT:
		path = inv.environment
	}

	if run.load_status == C.LUA_ERRMEM {
		status = C.LUA_ERRMEM
	}
	err := s.popError(status)
	if errors.Is(err, ErrQuotaExceeded) {
		kind = KindResourceExhaustion
	}
	return &Error{Kind: kind, Stage: stage, Path: path, Err: err}
}
