package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/luabox/sandbox"
)

// EnvPrefix prefixes environment overrides, e.g. LUABOX_SANDBOX_MAX_MEMORY.
const EnvPrefix = "LUABOX"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// SandboxConfig holds sandbox configuration. Zero limits mean unlimited.
type SandboxConfig struct {
	MaxInstructions int64  `mapstructure:"max_instructions" yaml:"max_instructions"`
	MaxMemory       int64  `mapstructure:"max_memory" yaml:"max_memory"`
	LuasrcDir       string `mapstructure:"luasrc_dir" yaml:"luasrc_dir"`
	SandboxDir      string `mapstructure:"sandbox_dir" yaml:"sandbox_dir"`
	Environment     string `mapstructure:"environment" yaml:"environment"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode   string   `mapstructure:"mode" yaml:"mode"`
	Level  string   `mapstructure:"level" yaml:"level"`
	Output []string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig holds the Prometheus endpoint configuration. Port 0 disables it.
type MetricsConfig struct {
	Port int    `mapstructure:"port" yaml:"port"`
	Path string `mapstructure:"path" yaml:"path"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"max-instructions": "sandbox.max_instructions",
	"max-memory":       "sandbox.max_memory",
	"luasrc-dir":       "sandbox.luasrc_dir",
	"sandbox-dir":      "sandbox.sandbox_dir",
	"environment":      "sandbox.environment",
	"log-level":        "logging.level",
	"log-mode":         "logging.mode",
}

// BindFlags registers the command line flags Load understands.
func BindFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "path to a config file")
	flags.Int64P("max-instructions", "i", 0, "raise an error every N executed VM instructions (0 = unlimited)")
	flags.Int64P("max-memory", "m", 0, "memory quota in bytes (0 = unlimited)")
	flags.StringP("luasrc-dir", "l", sandbox.DefaultLuasrcDir, "directory prepended to the Lua module search path")
	flags.StringP("sandbox-dir", "s", sandbox.DefaultSandboxDir, "directory holding the scripts to run")
	flags.StringP("environment", "e", sandbox.DefaultEnvironment, "default environment builder in the luasrc directory")
	flags.String("log-level", "info", "logging level")
	flags.String("log-mode", "production", "logging mode: production or development")
}

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load(nil)
}

// Load reads the configuration from defaults, an optional config.yaml, LUABOX_
// environment variables and flags, in increasing order of precedence. flags
// may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("sandbox.max_instructions", 0)
	v.SetDefault("sandbox.max_memory", 0)
	v.SetDefault("sandbox.luasrc_dir", sandbox.DefaultLuasrcDir)
	v.SetDefault("sandbox.sandbox_dir", sandbox.DefaultSandboxDir)
	v.SetDefault("sandbox.environment", sandbox.DefaultEnvironment)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", []string{"stderr"})

	v.SetDefault("metrics.port", 0)
	v.SetDefault("metrics.path", "/metrics")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got: %d", c.Server.HTTPPort)
	}

	if c.Sandbox.MaxInstructions < 0 {
		return fmt.Errorf("sandbox.max_instructions must not be negative, got: %d", c.Sandbox.MaxInstructions)
	}

	if c.Sandbox.MaxMemory < 0 {
		return fmt.Errorf("sandbox.max_memory must not be negative, got: %d", c.Sandbox.MaxMemory)
	}

	if c.Sandbox.LuasrcDir == "" {
		return fmt.Errorf("sandbox.luasrc_dir must not be empty")
	}

	if c.Sandbox.SandboxDir == "" {
		return fmt.Errorf("sandbox.sandbox_dir must not be empty")
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got: %d", c.Metrics.Port)
	}

	if c.Metrics.Port != 0 && c.Metrics.Port == c.Server.HTTPPort && c.Server.Transport == "http" {
		return fmt.Errorf("metrics.port must differ from server.http_port: %d", c.Metrics.Port)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got: %q", c.Metrics.Path)
	}

	return nil
}

// SandboxOptions returns the options every sandbox is created with.
func (c *Config) SandboxOptions() sandbox.Config {
	return sandbox.Config{
		MaxInstructions: c.Sandbox.MaxInstructions,
		MaxMemory:       c.Sandbox.MaxMemory,
		LuasrcDir:       c.Sandbox.LuasrcDir,
		SandboxDir:      c.Sandbox.SandboxDir,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return out, nil
}
