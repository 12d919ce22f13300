// Package logging builds the process-wide zap logger. Orchestration
// details go to a rolling log file under .agentpro/logs; the console only
// sees warnings and above unless verbose mode is on.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	// Dir is the log directory; empty disables the file sink.
	Dir string
	// Verbose lowers the console threshold to debug.
	Verbose bool
}

// New constructs the logger. Callers own the returned sync func and should
// defer it.
func New(opts Options) (*zap.Logger, func(), error) {
	var cores []zapcore.Core

	consoleLevel := zapcore.WarnLevel
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}
	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleLevel))

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, "agentpro.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open log file: %w", err)
		}
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(file), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() { _ = logger.Sync() }, nil
}
