// Package logging builds the process-wide zap logger, splitting output
// the way the original's LogFilter split stdout (below warning) from
// stderr (warning and above).
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger construction.
type Options struct {
	Debug    bool
	FilePath string // optional: also write JSON lines here
}

// New builds a *zap.Logger tee-ing Info-and-below to stdout and
// Warn-and-above to stderr, plus an optional JSON file sink.
func New(opts Options) (*zap.Logger, error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEnc := zapcore.NewConsoleEncoder(encCfg)
	jsonEnc := zapcore.NewJSONEncoder(encCfg)

	lowPriority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zap.WarnLevel
	})
	highPriority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zap.WarnLevel
	})

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), lowPriority),
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), highPriority),
	}

	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(jsonEnc, zapcore.AddSync(f), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= level
		})))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}
