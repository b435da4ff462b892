// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// Text output wraps the standard log package; json output writes one object per line
// so the service log can be shipped next to the factory API's own logs.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If the service is running smoothly, it shouldn't generate any error-level logs.
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// Logger provides leveled logging
type Logger struct {
	level  Level
	json   bool
	out    io.Writer
	mu     sync.Mutex
	logger *log.Logger
}

var (
	// Global logger instance
	defaultLogger *Logger
)

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	InitWithWriter(level, format, os.Stderr)
}

// InitWithWriter initializes the default logger writing to w.
func InitWithWriter(level string, format string, w io.Writer) {
	l := &Logger{
		level: ParseLevel(level),
		json:  strings.ToLower(format) == "json",
		out:   w,
	}
	if !l.json {
		l.logger = log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	}
	defaultLogger = l
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.json {
		_ = l.logger.Output(4, fmt.Sprintf("[%s] %s", levelNames[level], msg))
		return
	}

	line, err := json.Marshal(struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}{
		Time:  time.Now().Format(time.RFC3339Nano),
		Level: strings.ToLower(levelNames[level]),
		Msg:   msg,
	})
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}

func logAt(level Level, format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= level {
		defaultLogger.write(level, format, args...)
	}
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	logAt(DebugLevel, format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	logAt(InfoLevel, format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	logAt(WarnLevel, format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	logAt(ErrorLevel, format, args...)
}
