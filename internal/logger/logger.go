// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides leveled logging, optionally tagged with a component name.
type Logger struct {
	level  Level
	prefix string
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  parseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Scoped returns a logger that tags every line with the given component name.
// It shares the default logger's sink and level; Init must run first.
func Scoped(component string) *Logger {
	l := defaultLogger
	if l == nil {
		l = &Logger{level: InfoLevel, logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
	}
	return &Logger{
		level:  l.level,
		prefix: component + ": ",
		logger: l.logger,
	}
}

func (l *Logger) output(tag, format string, args ...interface{}) {
	msg := fmt.Sprintf(tag+" "+l.prefix+format, args...)
	_ = l.logger.Output(3, msg)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l != nil && l.level <= DebugLevel {
		l.output("[DEBUG]", format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l != nil && l.level <= InfoLevel {
		l.output("[INFO]", format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l != nil && l.level <= WarnLevel {
		l.output("[WARN]", format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l != nil && l.level <= ErrorLevel {
		l.output("[ERROR]", format, args...)
	}
}

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= DebugLevel {
		msg := fmt.Sprintf("[DEBUG] "+format, args...)
		_ = defaultLogger.logger.Output(2, msg)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= InfoLevel {
		msg := fmt.Sprintf("[INFO] "+format, args...)
		_ = defaultLogger.logger.Output(2, msg)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= WarnLevel {
		msg := fmt.Sprintf("[WARN] "+format, args...)
		_ = defaultLogger.logger.Output(2, msg)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= ErrorLevel {
		msg := fmt.Sprintf("[ERROR] "+format, args...)
		_ = defaultLogger.logger.Output(2, msg)
	}
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	if defaultLogger != nil {
		_ = defaultLogger.logger.Output(2, msg)
	}
	os.Exit(1)
}
