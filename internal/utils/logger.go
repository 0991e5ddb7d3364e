// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger backed by zap. Fields are passed as a map so
// call sites read the same as before the zap migration.
type Logger struct {
	sugar *zap.SugaredLogger
	file  *os.File
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Debug   bool
	LogFile string // optional; JSON lines are appended here as well as stdout
}

var (
	globalLogger *Logger
	loggerMu     sync.RWMutex
)

// NewLogger builds a zap logger writing to stdout and, optionally, a file.
func NewLogger(opts LoggerOptions) (*Logger, error) {
	level := zapcore.InfoLevel
	consoleCfg := zap.NewProductionEncoderConfig()
	if opts.Debug {
		level = zapcore.DebugLevel
		consoleCfg = zap.NewDevelopmentEncoderConfig()
	}
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level),
	}

	var file *os.File
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: z.Sugar(), file: file}, nil
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// GetLogger returns the process logger, falling back to a development logger.
func GetLogger() *Logger {
	loggerMu.RLock()
	l := globalLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger == nil {
		l, err := NewLogger(LoggerOptions{Debug: true})
		if err != nil {
			l = NewNopLogger()
		}
		globalLogger = l
	}
	return globalLogger
}

// SetLogger replaces the process logger.
func SetLogger(l *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	globalLogger = l
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(flatten(fields)...), file: l.file}
}

// Sync flushes buffered entries and closes the file sink.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
	if l.file != nil {
		_ = l.file.Close()
	}
}

func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.sugar.Debugw(message, flatten(fields)...)
}

func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.sugar.Infow(message, flatten(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.sugar.Warnw(message, flatten(fields)...)
}

func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.sugar.Errorw(message, flatten(fields)...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.sugar.Fatalw(message, flatten(fields)...)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// flatten turns a field map into sorted zap key/value pairs, redacting secrets.
func flatten(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		v := fields[k]
		if isSecretKey(k) {
			v = "[REDACTED]"
		}
		kv = append(kv, k, v)
	}
	return kv
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"api_key", "apikey", "token", "password", "secret", "authorization"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
