// Package logging constructs the zap loggers shared by the cmd entrypoints.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger tuned for console output. level is one of
// zap's textual levels (debug, info, warn, error); an unrecognised value
// falls back to info rather than panicking, since log level is rarely worth
// crashing over.
func NewLogger(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()

	l, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("error while building logger: %s", err.Error()))
	}

	return l
}
