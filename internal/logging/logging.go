// Package logging builds the gateway's shared zap.Logger: console output in
// development, JSON in production, plus an optional rotated JSON file.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeFormat is the timestamp layout of every encoder New builds (console
// and JSON).
const TimeFormat = "2006-01-02 15:04:05"

// Options configures New.
type Options struct {
	Dev      bool
	Level    string
	FilePath string // empty disables file rotation
}

// New builds the process-wide *zap.Logger. Dev mode logs human-readable
// console output at debug level; production logs JSON at the configured
// level. In either mode, a non-empty FilePath additionally writes JSON to
// that file, rotated via lumberjack.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Dev {
		level = zapcore.DebugLevel
	} else if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)

	var cores []zapcore.Core
	if opts.Dev {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(devCfg),
			zapcore.Lock(os.Stdout),
			level,
		))
	} else {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}
