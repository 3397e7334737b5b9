// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	Error = LogLevel(iota)
	Warning
	Info
	Debug
)

var (
	setupLock     = &sync.Mutex{}
	atomicLevel   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugarInstance *zap.SugaredLogger
)

func (level LogLevel) zapLevel() zapcore.Level {
	switch level {
	case Error:
		return zapcore.ErrorLevel
	case Warning:
		return zapcore.WarnLevel
	case Debug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

type Logger struct {
	sugar *zap.SugaredLogger
}

func SetLoggingConfig(level LogLevel) {
	atomicLevel.SetLevel(level.zapLevel())
}

// GetLogger returns the process-wide logger. The backing zap core is
// built once; the level can be changed at any time via SetLoggingConfig.
func GetLogger() *Logger {
	if sugarInstance == nil {
		setupLock.Lock()
		defer setupLock.Unlock()
		if sugarInstance == nil {
			encoderConfig := zap.NewDevelopmentEncoderConfig()
			core := zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderConfig),
				zapcore.Lock(os.Stderr),
				atomicLevel,
			)
			sugarInstance = zap.New(
				core,
				zap.AddCaller(),
				zap.AddCallerSkip(1),
			).Sugar()
		}
	}
	return &Logger{sugar: sugarInstance}
}

func (logger Logger) Error(data ...any) {
	logger.sugar.Error(data...)
}

func (logger Logger) Warn(data ...any) {
	logger.sugar.Warn(data...)
}

func (logger Logger) Warning(data ...any) {
	logger.Warn(data...)
}

func (logger Logger) Info(data ...any) {
	logger.sugar.Info(data...)
}

func (logger Logger) Debug(data ...any) {
	logger.sugar.Debug(data...)
}

func (logger Logger) Errorf(format string, a ...any) {
	logger.sugar.Errorf(format, a...)
}

func (logger Logger) Warnf(format string, a ...any) {
	logger.sugar.Warnf(format, a...)
}

func (logger Logger) Warningf(format string, a ...any) {
	logger.Warnf(format, a...)
}

func (logger Logger) Infof(format string, a ...any) {
	logger.sugar.Infof(format, a...)
}

func (logger Logger) Debugf(format string, a ...any) {
	logger.sugar.Debugf(format, a...)
}
