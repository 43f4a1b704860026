// Package config provides application configuration management.
//
// The config package loads and validates the application's configuration.
// Values come from built-in defaults, an optional config.yaml (in "." or
// "./config"), LUABOX_ prefixed environment variables and command line flags,
// each overriding the previous one.
//
// Usage:
//
//	flags := pflag.NewFlagSet("luabox", pflag.ContinueOnError)
//	config.BindFlags(flags)
//	_ = flags.Parse(os.Args[1:])
//
//	cfg, err := config.Load(flags)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sb, err := sandbox.New("main", cfg.SandboxOptions())
package config
