package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// Logger provides level-based logging functionality
type Logger struct {
	debugEnabled bool
	infoLogger   *log.Logger
	debugLogger  *log.Logger
}

// Global logger instance
var globalLogger *Logger

// Initialize sets up the global logger with debug mode setting
// All logging goes to stderr to avoid polluting stdout
func Initialize(debugMode bool) {
	// Always use stderr for logging so the CLI's stdout stays clean
	var output io.Writer = os.Stderr

	globalLogger = &Logger{
		debugEnabled: debugMode,
		infoLogger:   log.New(output, "", log.LstdFlags),
		debugLogger:  log.New(output, "", log.LstdFlags),
	}
}

// Info logs informational messages (always shown)
func Info(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.infoLogger.Printf(format, args...)
	}
}

// Debug logs debug messages (only shown when debug mode is enabled)
func Debug(format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.debugEnabled {
		globalLogger.debugLogger.Printf("DEBUG: "+format, args...)
	}
}

// Error logs error messages (always shown)
func Error(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.infoLogger.Printf("ERROR: "+format, args...)
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return globalLogger != nil && globalLogger.debugEnabled
}

// Context is a bound set of fields (message_id, task_id, workflow_id, ...)
// prefixed onto every log line it emits, per spec.md §4.2 step 2.
type Context struct {
	prefix string
}

// With returns a log Context carrying the given fields, sorted for stable
// output. Pass an even number of strings: key, value, key, value...
func With(fields ...string) Context {
	pairs := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		pairs[fields[i]] = fields[i+1]
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, pairs[k]))
	}
	return Context{prefix: strings.Join(parts, " ")}
}

func (c Context) Info(format string, args ...interface{}) {
	Info("%s "+format, append([]interface{}{c.prefix}, args...)...)
}

func (c Context) Debug(format string, args ...interface{}) {
	Debug("%s "+format, append([]interface{}{c.prefix}, args...)...)
}

func (c Context) Error(format string, args ...interface{}) {
	Error("%s "+format, append([]interface{}{c.prefix}, args...)...)
}
