package main

import (
	"github.com/spf13/cobra"

	"github.com/isdmx/luabox/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "luabox [flags] [script [environment]]",
		Short: "Run untrusted Lua scripts in a resource-limited sandbox",
		Long: `luabox - Run untrusted Lua 5.1 scripts with a memory quota and an instruction budget.

The script defaults to <sandbox-dir>/main.lua and the environment builder to
<luasrc-dir>/<environment>. The script only sees the table its environment
builder returns; without a builder it sees an empty table. Precompiled
bytecode is rejected.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runScript,
	}

	config.BindFlags(cmd.PersistentFlags())
	cmd.Flags().String("name", "", "sandbox name exposed as SANDBOX_NAME (default: random UUID)")

	cmd.AddCommand(newConfigCmd())
	return cmd
}
