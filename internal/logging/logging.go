// Package logging builds the zap logger shared by every temme host.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level and sinks.
type Options struct {
	// Level is a zap level name; "" means info.
	Level string
	// Verbose forces debug.
	Verbose bool
	// File is appended to when set. Its directory is created.
	File string
	// Stderr also writes to standard error. The LSP host owns stdout, so no
	// option writes there.
	Stderr bool
}

// New builds a production (JSON) logger.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = nil
	config.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		config.OutputPaths = append(config.OutputPaths, opts.File)
	}
	if opts.Stderr {
		config.OutputPaths = append(config.OutputPaths, "stderr")
	}
	if len(config.OutputPaths) == 0 {
		return zap.NewNop(), nil
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
