package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/sandbox"
)

// MockSandboxExecutor implements sandbox.SandboxExecutor for testing
type MockSandboxExecutor struct {
	executeResult sandbox.ExecuteResult
	executeError  error
	requests      []sandbox.ExecuteRequest
}

func (m *MockSandboxExecutor) Execute(_ context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error) {
	m.requests = append(m.requests, req)
	return m.executeResult, m.executeError
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Sandbox: config.SandboxConfig{
			MaxInstructions: 100000,
			MaxMemory:       1 << 20,
			LuasrcDir:       "luasrc",
			SandboxDir:      "sandbox",
			Environment:     "api.lua",
		},
		Logging: config.LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func callTool(t *testing.T, s *MCPServer, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetMCPServer().GetTool(RunLuaScriptTool)
	require.NotNil(t, tool)

	var req mcp.CallToolRequest
	req.Params.Name = RunLuaScriptTool
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	mockExecutor := &MockSandboxExecutor{}

	server, err := New(cfg, logger, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.Equal(t, mockExecutor, server.sandboxExec)
	assert.NotNil(t, server.mcpServer)

	t.Run("NilExecutor", func(t *testing.T) {
		_, err := New(cfg, logger, nil)
		require.Error(t, err)
	})
}

func TestRunLuaScriptToolSchema(t *testing.T) {
	server, err := New(testConfig(), zaptest.NewLogger(t), &MockSandboxExecutor{})
	require.NoError(t, err)

	tools := server.GetMCPServer().ListTools()
	require.Contains(t, tools, RunLuaScriptTool)

	schema := tools[RunLuaScriptTool].Tool.InputSchema
	assert.Contains(t, schema.Properties, "code")
	assert.Contains(t, schema.Properties, "script")
	assert.Contains(t, schema.Properties, "environment")
	assert.Empty(t, schema.Required)
}

func TestHandleRunLuaScript(t *testing.T) {
	remaining := int64(512)

	t.Run("Success", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{
			executeResult: sandbox.ExecuteResult{
				SandboxName:    "abc",
				Output:         "hello\n",
				Return:         int64(3),
				Stage:          "completed",
				QuotaRemaining: &remaining,
			},
		}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result := callTool(t, server, map[string]any{"code": "print('hello') return 3", "environment": "api.lua"})
		assert.False(t, result.IsError)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
		assert.Equal(t, "abc", decoded["sandbox_name"])
		assert.Equal(t, "hello\n", decoded["output"])
		assert.Equal(t, float64(3), decoded["return"])
		assert.Equal(t, "completed", decoded["stage"])
		assert.Equal(t, float64(512), decoded["quota_remaining"])
		assert.NotContains(t, decoded, "error")

		require.Len(t, mockExecutor.requests, 1)
		assert.Equal(t, sandbox.ExecuteRequest{Code: "print('hello') return 3", Environment: "api.lua"}, mockExecutor.requests[0])
	})

	t.Run("ScriptFailure", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{
			executeResult: sandbox.ExecuteResult{
				SandboxName: "def",
				Stage:       "running",
				Kind:        "resource_exhaustion",
				Error:       "resource_exhaustion: main.lua: not enough memory",
			},
		}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result := callTool(t, server, map[string]any{"script": "main.lua"})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "not enough memory")
		assert.Equal(t, "main.lua", mockExecutor.requests[0].Script)
	})

	t.Run("ExecutorError", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{executeError: errors.New("disk full")}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result := callTool(t, server, map[string]any{"code": "return 1"})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "Execution failed: disk full")
	})

	t.Run("CodeAndScript", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result := callTool(t, server, map[string]any{"code": "return 1", "script": "main.lua"})
		assert.True(t, result.IsError)
		assert.Empty(t, mockExecutor.requests)
	})

	t.Run("NoArguments", func(t *testing.T) {
		mockExecutor := &MockSandboxExecutor{executeResult: sandbox.ExecuteResult{Stage: "completed"}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		result := callTool(t, server, nil)
		assert.False(t, result.IsError)
		assert.Equal(t, sandbox.ExecuteRequest{}, mockExecutor.requests[0])
	})
}

func TestHandleRunLuaScriptNonFiniteReturn(t *testing.T) {
	root := t.TempDir()
	executor := sandbox.NewLuaExecutor(zaptest.NewLogger(t), &sandbox.Config{
		MaxInstructions: 100000,
		MaxMemory:       1 << 20,
		LuasrcDir:       filepath.Join(root, "luasrc"),
		SandboxDir:      filepath.Join(root, "sandbox"),
	}, sandbox.WithEnvironment(""))
	server, err := New(testConfig(), zaptest.NewLogger(t), executor)
	require.NoError(t, err)

	for code, want := range map[string]any{
		"return 0/0":          "nan",
		"return 1/0":          "inf",
		"return {-1/0, 1.5}": []any{"-inf", 1.5},
	} {
		t.Run(code, func(t *testing.T) {
			result := callTool(t, server, map[string]any{"code": code})
			require.False(t, result.IsError, resultText(t, result))

			var decoded map[string]any
			require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
			assert.Equal(t, want, decoded["return"])
			assert.Equal(t, "completed", decoded["stage"])
		})
	}
}

func TestShutdownWithoutHTTP(t *testing.T) {
	server, err := New(testConfig(), zaptest.NewLogger(t), &MockSandboxExecutor{})
	require.NoError(t, err)
	require.NoError(t, server.Shutdown(context.Background()))
}
