// Package sandbox runs untrusted Lua scripts inside an embedded interpreter.
//
// A Sandbox owns one Lua 5.1 VM, reached through golua and a small C layer
// (luabox.c) that performs every call able to raise a Lua error, so no error
// ever unwinds through Go frames. Building the package needs cgo and the
// Lua 5.1 headers and library.
//
// Two limits can be configured when a sandbox is created: a memory quota and
// an instruction budget. The quota is a byte budget enforced by the VM's
// allocator, so every block the interpreter allocates is charged and every
// block it frees is credited as it happens. The instruction budget raises a
// catchable error every MaxInstructions executed VM instructions, counted per
// coroutine.
//
// Scripts never see the VM's global table. Each Run binds the script to a
// table returned by an environment builder (a Lua file evaluated with the
// full standard library available) or, without one, to an empty table:
//
//	sb, err := sandbox.New("worker-1", sandbox.Config{
//	    MaxInstructions: 1_000_000,
//	    MaxMemory:       1 << 20,
//	    LuasrcDir:       "luasrc",
//	})
//	defer sb.Close()
//	ret, err := sb.Run("sandbox/main.lua", "luasrc/api.lua")
//
// Precompiled bytecode is always rejected.
//
// LuaExecutor wraps this into a SandboxExecutor that creates a fresh sandbox
// per request:
//
//	executor, err := sandbox.NewExecutor(logger, &cfg)
//	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
//	    Code: "return 1 + 1",
//	})
package sandbox
