package sandbox

import (
	"fmt"

	"go.uber.org/zap"
)

// NewExecutor validates config and creates the executor used by the server
// and the CLI.
func NewExecutor(logger *zap.Logger, config *Config, opts ...LuaExecutorOption) (SandboxExecutor, error) {
	if config == nil {
		return nil, fmt.Errorf("sandbox config is required")
	}
	if config.MaxInstructions < 0 {
		return nil, fmt.Errorf("max instructions must not be negative: %d", config.MaxInstructions)
	}
	if config.MaxMemory < 0 {
		return nil, fmt.Errorf("max memory must not be negative: %d", config.MaxMemory)
	}

	executorConfig := *config
	if executorConfig.LuasrcDir == "" {
		executorConfig.LuasrcDir = DefaultLuasrcDir
	}
	if executorConfig.SandboxDir == "" {
		executorConfig.SandboxDir = DefaultSandboxDir
	}

	return NewLuaExecutor(logger, &executorConfig, opts...), nil
}
