package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	mu      sync.Mutex
	out     io.Writer = color.Output
	verbose bool

	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgHiBlack)
)

// SetOutput redirects all loggers. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

func Verbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// Logger prefixes every line with a scope such as "[task 3]".
type Logger struct {
	prefix string
}

var std = &Logger{}

func New(scope string) *Logger {
	if scope == "" {
		return std
	}
	return &Logger{prefix: "[" + scope + "] "}
}

func ForTask(id int64) *Logger {
	return New(fmt.Sprintf("task %d", id))
}

func (l *Logger) With(scope string) *Logger {
	return &Logger{prefix: l.prefix + "[" + scope + "] "}
}

func (l *Logger) print(c *color.Color, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	line := fmt.Sprintf(format, args...)
	c.Fprintf(out, "%s %s%s\n", time.Now().Format("15:04:05"), l.prefix, line)
}

func (l *Logger) Info(format string, args ...interface{})    { l.print(infoColor, format, args...) }
func (l *Logger) Success(format string, args ...interface{}) { l.print(successColor, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})    { l.print(warnColor, format, args...) }
func (l *Logger) Error(format string, args ...interface{})   { l.print(errorColor, format, args...) }

func (l *Logger) Debug(format string, args ...interface{}) {
	if !Verbose() {
		return
	}
	l.print(debugColor, format, args...)
}

func Info(format string, args ...interface{})    { std.Info(format, args...) }
func Success(format string, args ...interface{}) { std.Success(format, args...) }
func Warn(format string, args ...interface{})    { std.Warn(format, args...) }
func Error(format string, args ...interface{})   { std.Error(format, args...) }
func Debug(format string, args ...interface{})   { std.Debug(format, args...) }
