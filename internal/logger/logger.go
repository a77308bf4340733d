// Package logger builds the process zap logger.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultLevel  = "info"
	DefaultFormat = "console"
	// DefaultOutput is stderr because stdout carries the stdio protocol.
	DefaultOutput = "stderr"
)

// New builds a logger writing to stdout, stderr or an append-only file.
// Unknown levels fall back to info. The returned func releases the output
// and must be called once the logger is no longer used.
func New(level, format, output string) (*zap.Logger, func(), error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	format = strings.ToLower(strings.TrimSpace(format))

	var encoderConfig zapcore.EncoderConfig
	if format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	target := strings.TrimSpace(output)
	if target == "" {
		target = DefaultOutput
	}
	writer, closeOutput, err := zap.Open(target)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, writer, zapLevel)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), closeOutput, nil
}
