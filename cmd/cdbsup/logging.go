package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log rotation bounds, chosen for a long-running interactive debugging
// session rather than a short-lived batch job.
const (
	logMaxSizeMB   = 50
	logMaxBackups  = 5
	logMaxAgeDays  = 28
	logCompressOld = true
)

// newLogger builds a zap.Logger writing JSON to stderr and, when
// logFile is non-empty, a rotated copy to disk via lumberjack. Grounded
// on the teacher's zap+zapcore wiring (kdlbs-kandev's internal/common/logger),
// swapping its plain os.File sink for a lumberjack.Logger so long sessions
// don't grow one log file without bound.
func newLogger(logFile, level string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), lvl),
	}
	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   logCompressOld,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotated), lvl))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}
