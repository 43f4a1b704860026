package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/logger"
	"github.com/isdmx/luabox/primitives"
	"github.com/isdmx/luabox/sandbox"
)

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	script, environment, err := scriptPaths(cfg, args)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = uuid.NewString()
	}
	log = log.With(zap.String("sandbox", name))

	sb, err := sandbox.New(name, cfg.SandboxOptions(),
		sandbox.WithLogger(log),
		sandbox.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer func() { _ = sb.Close() }()

	if err := primitives.Default(log).Install(sb); err != nil {
		return fmt.Errorf("failed to install primitives: %w", err)
	}

	ret, err := sb.Run(script, environment)
	if err != nil {
		return err
	}
	return printReturn(cmd, ret)
}

// scriptPaths resolves the positional arguments. A missing default
// environment builder means an empty environment; a missing explicit one is
// reported by the sandbox.
func scriptPaths(cfg *config.Config, args []string) (script, environment string, err error) {
	script = filepath.Join(cfg.Sandbox.SandboxDir, sandbox.DefaultScript)
	if len(args) > 0 {
		script = args[0]
	}

	if len(args) > 1 {
		return script, args[1], nil
	}
	if cfg.Sandbox.Environment == "" {
		return script, "", nil
	}
	environment = filepath.Join(cfg.Sandbox.LuasrcDir, cfg.Sandbox.Environment)
	if _, err := os.Stat(environment); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return script, "", nil
		}
		return "", "", fmt.Errorf("failed to check environment %s: %w", environment, err)
	}
	return script, environment, nil
}

func printReturn(cmd *cobra.Command, ret any) error {
	if ret == nil {
		return nil
	}
	out := cmd.OutOrStdout()
	if s, ok := ret.(string); ok {
		_, err := fmt.Fprintln(out, s)
		return err
	}
	data, err := json.Marshal(ret)
	if err != nil {
		return fmt.Errorf("failed to encode return value: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
