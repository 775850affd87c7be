package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger. Production uses JSON with ISO8601
// timestamps; anything else gets the colored development console. When
// cloudWatch is non-nil every entry is also written to it as JSON.
func New(env string, cloudWatch io.Writer) (*zap.Logger, error) {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if cloudWatch == nil {
		return config.Build()
	}

	level := zap.NewAtomicLevelAt(config.Level.Level())
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(config.EncoderConfig), zapcore.AddSync(os.Stdout), level)

	// CloudWatch gets plain levels; color codes would end up in the log stream.
	cwEncoderConfig := config.EncoderConfig
	cwEncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	remote := zapcore.NewCore(zapcore.NewJSONEncoder(cwEncoderConfig), zapcore.AddSync(cloudWatch), level)

	return zap.New(zapcore.NewTee(console, remote), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
