// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	logger, err := build(development, nil)
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// NewWithFile builds a logger that writes to stdout and to a dated log
// file under dir, creating the directory if needed.
func NewWithFile(development bool, dir string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("harvester_%s.log", time.Now().Format("2006-01-02"))
	paths := []string{"stdout", filepath.Join(dir, name)}
	return build(development, paths)
}

func build(development bool, outputPaths []string) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
		cfg.EncoderConfig.TimeKey = "ts"
	}
	if len(outputPaths) > 0 {
		cfg.OutputPaths = outputPaths
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
