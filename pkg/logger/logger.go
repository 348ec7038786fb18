// Package logger holds the process-wide zap logger used by every pipeline component.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is a no-op logger until Init is called, so packages can log from tests
// without setting anything up.
var Log = zap.NewNop()

// Init builds the global logger. An empty logFile selects the development
// encoder; json forces the production (JSON) encoder, which is what Lambda
// and CloudWatch expect.
func Init(level string, logFile string, json bool) error {
	var config zap.Config

	switch {
	case logFile != "":
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{logFile, "stdout"}
	case json:
		config = zap.NewProductionConfig()
	default:
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := config.Build()
	if err != nil {
		return err
	}
	Log = built

	return nil
}

func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
