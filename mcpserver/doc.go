// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// run_lua_script tool. It uses the mark3labs/mcp-go library to handle the
// protocol details. Each call runs in a fresh sandbox; the tool result carries
// the JSON-encoded sandbox.ExecuteResult and is flagged as an error when the
// script failed.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sandboxExecutor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
