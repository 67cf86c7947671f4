package logging

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// DefaultLogger is the default logger inside the muxserve server.
	DefaultLogger Logger
	zapLogger     *zap.Logger
)

func init() {
	switch strings.ToLower(os.Getenv("MUXSERVE_LOGGING_MODE")) {
	case "prod":
		zapLogger, _ = zap.NewProduction()
	default:
		// Other values except "prod" create the development logger for muxserve server.
		cfg := zap.NewDevelopmentConfig()
		if isatty.IsTerminal(os.Stderr.Fd()) {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		zapLogger, _ = cfg.Build()
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	DefaultLogger = zapLogger.Sugar()
}

// Raw returns the structured logger behind DefaultLogger.
func Raw() *zap.Logger {
	return zapLogger
}

// Cleanup does something windup for logger, like closing, flushing, etc.
func Cleanup() {
	_ = zapLogger.Sync()
}

// Logger is used for logging formatted messages.
type Logger interface {
	// Debugf logs messages at DEBUG level.
	Debugf(format string, args ...interface{})
	// Infof logs messages at INFO level.
	Infof(format string, args ...interface{})
	// Warnf logs messages at WARN level.
	Warnf(format string, args ...interface{})
	// Errorf logs messages at ERROR level.
	Errorf(format string, args ...interface{})
	// Fatalf logs messages at FATAL level.
	Fatalf(format string, args ...interface{})
}
