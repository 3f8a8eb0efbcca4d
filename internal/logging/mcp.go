package logging

import (
	"log/slog"
)

// SetupServeMode initializes logging for the MCP stdio server.
// stdout carries JSON-RPC, so logs go to the file only.
func SetupServeMode(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("serve_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", level))
	return cleanup, nil
}
