// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps debug|info|warn|warning|error to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// FileOptions controls rotation of the log file.
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultFileOptions rotates at 50 MB and keeps a week of compressed backups.
var DefaultFileOptions = FileOptions{MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 7, Compress: true}

type sink struct {
	out    io.Writer
	color  bool
	byLvl  [4]*log.Logger
	closer io.Closer
}

func newSink(out io.Writer, color bool) *sink {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	s := &sink{out: out, color: color}
	prefixes := [4]string{"[DEBUG] ", "[INFO]  ", "[WARN]  ", "[ERROR] "}
	colors := [4]string{colorGray, colorReset, colorYellow, colorRed}
	for i, p := range prefixes {
		if color {
			p = colors[i] + p + colorReset
		}
		s.byLvl[i] = log.New(out, p, flags)
	}
	return s
}

type Logger struct {
	sinks    []*sink
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.RWMutex
)

// ensureInitialized creates a console logger if Init was never called
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = &Logger{sinks: []*sink{newSink(os.Stdout, true)}, minLevel: DEBUG}
		}
	})
}

// Init sets up the logger. If filename is empty, logs go only to the console;
// if console is false, only to the rotated file.
func Init(filename string, console bool, opts FileOptions) error {
	l := &Logger{minLevel: DEBUG}
	if console {
		l.sinks = append(l.sinks, newSink(os.Stdout, true))
	}
	if filename != "" {
		lj := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		s := newSink(lj, false)
		s.closer = lj
		l.sinks = append(l.sinks, s)
	}
	if len(l.sinks) == 0 {
		return fmt.Errorf("no output destination specified")
	}

	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	closeSinks(defaultLogger)
	defaultLogger = l
	return nil
}

// SetOutput replaces every destination with w, uncoloured. Used by tests.
func SetOutput(w io.Writer) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	min := DEBUG
	if defaultLogger != nil {
		min = defaultLogger.minLevel
	}
	closeSinks(defaultLogger)
	defaultLogger = &Logger{sinks: []*sink{newSink(w, false)}, minLevel: min}
}

// SetLevel sets the minimum log level. Messages below it are dropped.
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// Enabled reports whether messages at level would be written.
func Enabled(level LogLevel) bool {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return level >= defaultLogger.minLevel
}

// Close flushes and closes the log file if one is open.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeSinks(defaultLogger)
}

func closeSinks(l *Logger) {
	if l == nil {
		return
	}
	kept := l.sinks[:0]
	for _, s := range l.sinks {
		if s.closer != nil {
			s.closer.Close()
			continue
		}
		kept = append(kept, s)
	}
	l.sinks = kept
}

func output(level LogLevel, msg string) {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	if level < defaultLogger.minLevel {
		return
	}
	for _, s := range defaultLogger.sinks {
		s.byLvl[level].Output(3, msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) { output(DEBUG, fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { output(DEBUG, fmt.Sprintf(format, v...)) }

// Info logs an info message
func Info(v ...interface{}) { output(INFO, fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { output(INFO, fmt.Sprintf(format, v...)) }

// Warn logs a warning message
func Warn(v ...interface{}) { output(WARN, fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { output(WARN, fmt.Sprintf(format, v...)) }

// Error logs an error message
func Error(v ...interface{}) { output(ERROR, fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { output(ERROR, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
	Close()
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	Close()
	os.Exit(1)
}
