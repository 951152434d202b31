// Package logging provides structured JSON logging for Taskin, backed by logrus.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ParseLevel maps a config string such as "debug" or "WARN" to a LogLevel.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger provides structured JSON logging.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel LogLevel
	backend  *logrus.Logger
}

var (
	global *Logger
	once   sync.Once
	gmu    sync.RWMutex
)

// New creates a logger writing JSON lines to out.
func New(out io.Writer, minLevel LogLevel) *Logger {
	backend := logrus.New()
	backend.SetOutput(out)
	backend.SetLevel(minLevel.logrus())
	backend.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return &Logger{out: out, minLevel: minLevel, backend: backend}
}

// Init initializes the global logger. Only the first call has an effect.
func Init(out io.Writer, minLevel LogLevel) {
	once.Do(func() {
		gmu.Lock()
		global = New(out, minLevel)
		gmu.Unlock()
	})
}

// SetGlobal replaces the global logger, e.g. after configuration has been loaded.
func SetGlobal(l *Logger) {
	once.Do(func() {})
	gmu.Lock()
	global = l
	gmu.Unlock()
}

// Get returns the global logger instance.
func Get() *Logger {
	gmu.RLock()
	l := global
	gmu.RUnlock()
	if l == nil {
		Init(os.Stdout, LevelInfo)
		gmu.RLock()
		l = global
		gmu.RUnlock()
	}
	return l
}

// MinLevel returns the configured minimum level.
func (l *Logger) MinLevel() LogLevel {
	return l.minLevel
}

func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := logrus.NewEntry(l.backend)
	if len(context) > 0 {
		entry = entry.WithField("context", context)
	}
	if err != nil {
		entry = entry.WithField(logrus.ErrorKey, err.Error())
		if code := apperrors.CodeOf(err); apperrors.Is(err, code) {
			entry = entry.WithField("code", string(code))
		}
	}
	entry.Log(level.logrus(), message)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.log(LevelDebug, message, nil, mergeContext(context...))
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.log(LevelInfo, message, nil, mergeContext(context...))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.log(LevelWarn, message, nil, mergeContext(context...))
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	l.log(LevelError, message, err, mergeContext(context...))
}

// ErrorWithCode logs err under an explicit error code, wrapping it when it
// does not already carry one.
func (l *Logger) ErrorWithCode(message string, code apperrors.ErrorCode, err error, context ...map[string]interface{}) {
	if err == nil {
		err = apperrors.New(code, message)
	} else if !apperrors.Is(err, code) {
		err = apperrors.Wrap(code, message, err)
	}
	l.log(LevelError, message, err, mergeContext(context...))
}

// Printf lets the logger serve libraries that log through a printf-style
// sink (gorm, cron). Lines are logged at WARN.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.log(LevelWarn, strings.TrimSpace(fmt.Sprintf(format, args...)), nil, nil)
}

func mergeContext(context ...map[string]interface{}) map[string]interface{} {
	if len(context) == 0 {
		return nil
	}
	if len(context) == 1 {
		return context[0]
	}
	merged := make(map[string]interface{})
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}

// Convenience functions using global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message string, code apperrors.ErrorCode, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, code, err, context...)
}
