// Package main is the luabox command line tool.
//
// luabox runs a single Lua script in a sandbox and prints what the script
// printed followed by its first return value:
//
//	luabox                                 # sandbox/main.lua with luasrc/api.lua
//	luabox -m 1048576 -i 1000000 job.lua   # job.lua with limits
//	luabox job.lua env.lua                 # job.lua bound to env.lua
//	luabox config                          # print the effective configuration
//
// Limits and directories come from the same configuration sources as the
// server: config.yaml, LUABOX_ environment variables and flags.
package main
