package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/sandbox"
)

// Name and version reported to MCP clients.
const (
	ServerName    = "luabox"
	ServerVersion = "1.0.0"
)

// RunLuaScriptTool is the name of the script execution tool.
const RunLuaScriptTool = "run_lua_script"

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	mcpServer   *server.MCPServer

	mu         sync.Mutex
	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	if sandboxExec == nil {
		return nil, fmt.Errorf("sandbox executor is required")
	}

	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int64("sandbox.max_instructions", s.config.Sandbox.MaxInstructions),
		zap.Int64("sandbox.max_memory", s.config.Sandbox.MaxMemory),
		zap.String("sandbox.luasrc_dir", s.config.Sandbox.LuasrcDir),
		zap.String("sandbox.sandbox_dir", s.config.Sandbox.SandboxDir),
		zap.String("sandbox.environment", s.config.Sandbox.Environment),
		zap.Int("metrics.port", s.config.Metrics.Port),
	)

	s.mcpServer = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Runs Lua 5.1 scripts in a sandbox with a memory quota and an instruction budget."),
	)

	s.registerRunLuaScriptTool()

	return s, nil
}

// registerRunLuaScriptTool registers the run_lua_script tool
func (s *MCPServer) registerRunLuaScriptTool() {
	tool := mcp.NewTool(RunLuaScriptTool,
		mcp.WithDescription("Run an untrusted Lua script in a fresh sandbox and return its output and first return value"),
		mcp.WithString("code",
			mcp.Description("Inline Lua source. Mutually exclusive with script"),
		),
		mcp.WithString("script",
			mcp.Description("Script file relative to the sandbox directory (default main.lua)"),
		),
		mcp.WithString("environment",
			mcp.Description("Environment builder relative to the luasrc directory (default from configuration)"),
		),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.mcpServer.AddTool(tool, s.handleRunLuaScript)
}

// handleRunLuaScript handles the run_lua_script tool
func (s *MCPServer) handleRunLuaScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := sandbox.ExecuteRequest{
		Code:        request.GetString("code", ""),
		Script:      request.GetString("script", ""),
		Environment: request.GetString("environment", ""),
	}
	if req.Code != "" && req.Script != "" {
		return mcp.NewToolResultError("code and script are mutually exclusive"), nil
	}

	s.logger.Info("script execution requested",
		zap.Bool("inline", req.Code != ""),
		zap.String("script", req.Script),
		zap.String("environment", req.Environment))

	result, err := s.sandboxExec.Execute(ctx, req)
	if err != nil {
		s.logger.Error("sandbox execution failed",
			zap.Error(err),
			zap.String("script", req.Script),
			zap.String("code", req.Code))
		return mcp.NewToolResultError(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	s.logger.Info("script execution completed",
		zap.String("sandbox", result.SandboxName),
		zap.String("stage", result.Stage),
		zap.String("kind", result.Kind),
		zap.Int("output_len", len(result.Output)))

	toolResult, err := mcp.NewToolResultJSON(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	toolResult.IsError = result.Failed()
	return toolResult, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP and blocks until Shutdown is called.
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	s.mu.Lock()
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	httpServer := s.httpServer
	s.mu.Unlock()

	err := httpServer.Start(fmt.Sprintf(":%d", port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP transport if it is running.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}
	s.logger.Info("stopping MCP server")
	return httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
