// Package main is the entry point for the luabox MCP server.
//
// The server exposes the run_lua_script tool over the Model Context Protocol.
// Every call runs an untrusted Lua script in a fresh sandbox bounded by a
// memory quota and an instruction budget, with only the capabilities its
// environment builder chooses to expose. The server supports both stdio and
// HTTP transports and can serve Prometheus metrics on a separate port.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
