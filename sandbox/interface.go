package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExecuteRequest represents the parameters for one script execution.
// Exactly one of Code and Script may be set; with neither the default script
// in the sandbox directory is run.
type ExecuteRequest struct {
	Code        string // inline Lua source
	Script      string // file name relative to the sandbox directory
	Environment string // builder file name relative to the luasrc directory
}

// ExecuteResult represents the outcome of one script execution. Script
// failures are reported here rather than as an error.
type ExecuteResult struct {
	SandboxName    string `json:"sandbox_name"`
	Output         string `json:"output"`
	Return         any    `json:"return,omitempty"`
	Stage          string `json:"stage"`
	Kind           string `json:"kind,omitempty"`
	Error          string `json:"error,omitempty"`
	QuotaRemaining *int64 `json:"quota_remaining,omitempty"`
}

// Failed reports whether the script did not complete.
func (r ExecuteResult) Failed() bool {
	return r.Error != ""
}

// SandboxExecutor defines the interface for sandbox execution
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// Registrar installs host primitives into a freshly created sandbox.
type Registrar interface {
	Install(sb *Sandbox) error
}

// Recorder receives execution metrics.
type Recorder interface {
	SandboxOpened()
	SandboxClosed()
	ObserveRun(stage, kind string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SandboxOpened()                          {}
func (nopRecorder) SandboxClosed()                          {}
func (nopRecorder) ObserveRun(_, _ string, _ time.Duration) {}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0600
)

// Filename constants
const (
	DefaultScript      = "main.lua"
	DefaultEnvironment = "api.lua"
	InlinePrefix       = "inline-"
	LuaExtension       = ".lua"
)

// ResolvePath joins a request-supplied name onto root, refusing absolute names
// and names that climb out of root.
func ResolvePath(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path not allowed: %s", name)
	}

	cleanName := filepath.Clean(name)
	if escapes(cleanName) {
		return "", fmt.Errorf("unsafe relative path: %s", name)
	}

	path := filepath.Join(root, cleanName)
	rel, err := filepath.Rel(root, path)
	if err != nil || escapes(rel) {
		return "", fmt.Errorf("invalid file path: %s", name)
	}
	return path, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
