package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeFormat = "2006-01-02 15:04:05.999"

// New builds the process logger. Level comes from config ("debug", "info",
// "warn", "error"); an unparseable value falls back to info.
func New(level string) *zap.Logger {
	atomic := zap.NewAtomicLevel()
	_ = atomic.UnmarshalText([]byte(level))

	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.Level = atomic
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
	config.DisableStacktrace = true
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
