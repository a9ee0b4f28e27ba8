// Package logger provides the zap logger used across sglang-chat.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the client logs.
type Options struct {
	// Debug lowers the level to DEBUG.
	Debug bool

	// File, when set, sends logs to a size-rotated file instead of stderr.
	File string
}

// NewLogger builds a console-encoded zap logger. Logging to the terminal
// defaults to WARN so log lines do not interleave with the chat; file
// logging defaults to INFO.
func NewLogger(opts Options) *zap.Logger {
	var out io.Writer = os.Stderr
	level := zap.WarnLevel

	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		level = zap.InfoLevel
	}
	if opts.Debug {
		level = zap.DebugLevel
	}

	return newWithWriter(out, level, opts.File == "")
}

func newWithWriter(w io.Writer, level zapcore.Level, color bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)

	return zap.New(core, zap.AddCaller())
}
