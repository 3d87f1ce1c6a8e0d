// Package buildlog provides a package-level structured logger shared by
// every component of the build orchestration service. The shape mirrors
// the teacher's sklog package (module-level Infof/Errorf/... functions
// backed by a single process-wide logger) but is backed by zap instead
// of glog.
package buildlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

// SetLogger replaces the process-wide logger. Tests typically install a
// zaptest.NewLogger or an observer-backed logger here.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l.Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger with the given key/value pairs attached to
// every subsequent entry, e.g. buildlog.With("build_id", id).Infof(...).
func With(args ...interface{}) *Logger {
	return &Logger{sugar: current().With(args...)}
}

// Logger is a context-scoped handle returned by With.
type Logger struct {
	sugar *zap.SugaredLogger
}

func (l *Logger) Infof(format string, args ...interface{})    { l.sugar.Infof(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})   { l.sugar.Debugf(format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.sugar.Errorf(format, args...) }

func Infof(format string, args ...interface{})    { current().Infof(format, args...) }
func Debugf(format string, args ...interface{})   { current().Debugf(format, args...) }
func Warningf(format string, args ...interface{}) { current().Warnf(format, args...) }
func Errorf(format string, args ...interface{})   { current().Errorf(format, args...) }
