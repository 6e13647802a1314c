package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity level.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu    sync.Mutex
	level = LevelInfo
	out   io.Writer = os.Stderr
)

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// SetLevel sets the global minimum level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func logf(l Level, tag, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(out, "%s [%s] %s\n", ts, tag, fmt.Sprintf(format, args...))
}

func Trace(format string, args ...any) { logf(LevelTrace, "TRACE", format, args...) }
func Debug(format string, args ...any) { logf(LevelDebug, "DEBUG", format, args...) }
func Info(format string, args ...any)  { logf(LevelInfo, "INFO", format, args...) }
func Warn(format string, args ...any)  { logf(LevelWarn, "WARN", format, args...) }
func Error(format string, args ...any) { logf(LevelError, "ERROR", format, args...) }
