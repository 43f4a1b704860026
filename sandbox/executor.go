package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LuaExecutor implements SandboxExecutor by running every request in a fresh
// Sandbox that is closed as soon as the request completes.
type LuaExecutor struct {
	logger      *zap.Logger
	config      *Config
	environment string
	registrar   Registrar
	recorder    Recorder
	fs          FileSystem
}

// LuaExecutorOption defines a functional option for LuaExecutor
type LuaExecutorOption func(*LuaExecutor)

// WithFileSystem sets the FileSystem used for inline scripts
func WithFileSystem(fs FileSystem) LuaExecutorOption {
	return func(e *LuaExecutor) {
		e.fs = fs
	}
}

// WithRegistrar sets the host primitives installed into every sandbox
func WithRegistrar(r Registrar) LuaExecutorOption {
	return func(e *LuaExecutor) {
		e.registrar = r
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) LuaExecutorOption {
	return func(e *LuaExecutor) {
		e.recorder = r
	}
}

// WithEnvironment sets the builder used when a request names none. An empty
// name runs such requests in an empty environment.
func WithEnvironment(name string) LuaExecutorOption {
	return func(e *LuaExecutor) {
		e.environment = name
	}
}

// NewLuaExecutor creates a new LuaExecutor with default implementations and optional interfaces
func NewLuaExecutor(logger *zap.Logger, config *Config, opts ...LuaExecutorOption) *LuaExecutor {
	executor := &LuaExecutor{
		logger:      logger,
		config:      config,
		environment: DefaultEnvironment,
		recorder:    nopRecorder{},
		fs:          &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs one script in its own sandbox. Script failures are returned in
// the result; the error is reserved for requests that could not be run.
func (e *LuaExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecuteResult{}, err
	}
	if req.Code != "" && req.Script != "" {
		return ExecuteResult{}, fmt.Errorf("code and script are mutually exclusive")
	}

	name := uuid.NewString()
	logger := e.logger.With(zap.String("sandbox", name))

	script, cleanup, err := e.prepareScript(name, req)
	if err != nil {
		return ExecuteResult{}, err
	}
	defer cleanup()

	environment, err := e.resolveEnvironment(logger, req.Environment)
	if err != nil {
		return ExecuteResult{}, err
	}

	var output bytes.Buffer
	sb, err := New(name, *e.config, WithLogger(logger), WithOutput(&output))
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to create sandbox: %w", err)
	}
	e.recorder.SandboxOpened()
	defer func() {
		_ = sb.Close()
		e.recorder.SandboxClosed()
	}()

	if e.registrar != nil {
		if err := e.registrar.Install(sb); err != nil {
			return ExecuteResult{}, fmt.Errorf("failed to install primitives: %w", err)
		}
	}

	start := time.Now()
	ret, runErr := sb.Run(script, environment)
	elapsed := time.Since(start)

	result := ExecuteResult{SandboxName: name}
	if remaining, ok := sb.QuotaRemaining(); ok {
		result.QuotaRemaining = &remaining
	}
	if runErr != nil {
		result.Stage = StageOf(runErr).String()
		result.Kind = KindOf(runErr).String()
		result.Error = runErr.Error()
	} else {
		result.Stage = StageCompleted.String()
		result.Return = ret
	}
	result.Output = output.String()

	e.recorder.ObserveRun(result.Stage, KindOf(runErr).String(), elapsed)
	logger.Info("script executed",
		zap.String("script", script),
		zap.String("environment", environment),
		zap.String("stage", result.Stage),
		zap.Bool("failed", result.Failed()),
		zap.Duration("elapsed", elapsed))

	return result, nil
}

// prepareScript returns the path of the script to run. Inline code is written
// to a file in the sandbox directory that cleanup removes.
func (e *LuaExecutor) prepareScript(name string, req ExecuteRequest) (path string, cleanup func(), err error) {
	cleanup = func() {}

	if req.Code == "" {
		script := req.Script
		if script == "" {
			script = DefaultScript
		}
		path, err = ResolvePath(e.config.SandboxDir, script)
		if err != nil {
			return "", cleanup, fmt.Errorf("invalid script: %w", err)
		}
		return path, cleanup, nil
	}

	if err := e.fs.MkdirAll(e.config.SandboxDir, DirPermission); err != nil {
		return "", cleanup, fmt.Errorf("failed to create sandbox dir: %w", err)
	}
	path = filepath.Join(e.config.SandboxDir, InlinePrefix+name+LuaExtension)
	if err := e.fs.WriteFile(path, []byte(req.Code), FilePermission); err != nil {
		return "", cleanup, fmt.Errorf("failed to write user code: %w", err)
	}

	cleanup = func() {
		if err := e.fs.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove inline script", zap.String("path", path), zap.Error(err))
		}
	}
	return path, cleanup, nil
}

// resolveEnvironment returns the builder path for the request. A missing
// default builder is not an error: the script then gets an empty environment.
func (e *LuaExecutor) resolveEnvironment(logger *zap.Logger, requested string) (string, error) {
	if requested != "" {
		path, err := ResolvePath(e.config.LuasrcDir, requested)
		if err != nil {
			return "", fmt.Errorf("invalid environment: %w", err)
		}
		return path, nil
	}

	if e.environment == "" {
		return "", nil
	}
	path, err := ResolvePath(e.config.LuasrcDir, e.environment)
	if err != nil {
		return "", fmt.Errorf("invalid default environment: %w", err)
	}
	exists, err := e.fs.FileExists(path)
	if err != nil {
		return "", fmt.Errorf("failed to check environment: %w", err)
	}
	if !exists {
		logger.Warn("default environment not found, using an empty one", zap.String("path", path))
		return "", nil
	}
	return path, nil
}
