package primitives

import (
	"io"
	"strings"

	"github.com/isdmx/luabox/sandbox"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Names of the built-in primitives.
const (
	PrintName = "print"
	LogName   = "log"
	InfoName  = "sandbox_info"
)

// Print writes its arguments to the sandbox output, rendered like tostring
// and separated by tabs, followed by a newline.
func Print(sb *sandbox.Sandbox, _ *zap.Logger) sandbox.HostFunc {
	return func(args sandbox.Args) ([]any, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.Text
		}
		_, err := io.WriteString(sb.Output(), strings.Join(parts, "\t")+"\n")
		return nil, err
	}
}

// Log forwards log(level, message) to the host logger.
func Log(_ *sandbox.Sandbox, logger *zap.Logger) sandbox.HostFunc {
	return func(args sandbox.Args) ([]any, error) {
		name, err := args.CheckString(1)
		if err != nil {
			return nil, err
		}
		msg, err := args.CheckString(2)
		if err != nil {
			return nil, err
		}

		level, err := zapcore.ParseLevel(name)
		if err != nil || level > zapcore.ErrorLevel {
			return nil, args.ArgError(1, "unknown log level: "+name)
		}
		if ce := logger.Check(level, msg); ce != nil {
			ce.Write(zap.String("source", "script"))
		}
		return nil, nil
	}
}

// Info returns a table describing the sandbox the script runs in.
func Info(sb *sandbox.Sandbox, _ *zap.Logger) sandbox.HostFunc {
	return func(sandbox.Args) ([]any, error) {
		cfg := sb.Config()
		info := map[string]any{
			"name":             sb.Name(),
			"max_instructions": cfg.MaxInstructions,
			"max_memory":       cfg.MaxMemory,
		}
		if remaining, ok := sb.QuotaRemaining(); ok {
			info["quota_remaining"] = remaining
		}
		return []any{info}, nil
	}
}
