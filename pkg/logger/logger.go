// Package logger configures the process-wide zap logger. Packages log through
// zap.L() so nothing but main needs to import this.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds the global logger for the given environment and installs it via
// zap.ReplaceGlobals. Call once from main before anything logs.
func Init(env string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err := config.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = zap.L().Sync()
}
