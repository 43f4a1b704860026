// Package app wires the luabox components together.
//
// Module is the fx application used by the MCP server binary. NewExecutor is
// shared with the command line tool, which builds its executor without fx.
package app
