// Package logger builds the zap loggers used by luabox.
//
// Production mode writes JSON with ISO8601 timestamps; development mode writes
// colored console output. Output goes to stderr unless logging.output says
// otherwise, so the stdio MCP transport keeps stdout to itself. NewFxLogger
// routes fx lifecycle events through the same logger.
//
// Usage:
//
//	log, err := logger.NewFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	log.Info("sandbox created", zap.String("sandbox", name))
package logger
