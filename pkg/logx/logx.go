// Package logx provides structured logging for the orchestration workflows.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Logger writes timestamped, role-tagged log lines to stderr.
type Logger struct {
	name   string
	logger *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// debugEnabled is read once at startup from the DEBUG environment variable.
var debugEnabled = func() bool {
	v := os.Getenv("DEBUG")
	return v == "1" || strings.EqualFold(v, "true")
}()

func NewLogger(name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(os.Stderr, "", 0), // Log to stderr for CLI compatibility
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.name, level, message)
}

func (l *Logger) Debug(format string, args ...any) {
	if !debugEnabled {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (l *Logger) Name() string {
	return l.name
}

// WithName returns a logger sharing the same output with a different tag.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{name: name, logger: l.logger}
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("planloop")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("setup failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
// Use this when you need both logging and error wrapping:
//
//	if err != nil { return logx.Wrap(err, "read plan file") }.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
