package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for general operational information
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
	// FATAL level for fatal errors that require immediate attention
	FATAL
)

var charmLevels = map[LogLevel]log.Level{
	DEBUG: log.DebugLevel,
	INFO:  log.InfoLevel,
	WARN:  log.WarnLevel,
	ERROR: log.ErrorLevel,
	FATAL: log.FatalLevel,
}

func (l LogLevel) String() string {
	if lvl, ok := charmLevels[l]; ok {
		return lvl.String()
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name such as "debug" or "WARN" to a LogLevel
func ParseLevel(name string) (LogLevel, error) {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return INFO, fmt.Errorf("invalid log level %q", name)
	}
	for level, charm := range charmLevels {
		if charm == lvl {
			return level, nil
		}
	}
	return INFO, fmt.Errorf("unsupported log level %q", name)
}

// Logger is a levelled, component-scoped logger
type Logger struct {
	base      *log.Logger
	component string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a logger writing to w
func New(w io.Writer, level LogLevel, component string) *Logger {
	base := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.StampMicro,
		Level:           charmLevels[level],
		Prefix:          component,
	})
	return &Logger{base: base, component: component}
}

// InitLogger initializes the default logger
func InitLogger(level LogLevel, component string) {
	once.Do(func() {
		defaultLogger = New(os.Stdout, level, component)
	})
}

// GetLogger returns the default logger instance, creating it at INFO if InitLogger was not called
func GetLogger() *Logger {
	InitLogger(INFO, "default")
	return defaultLogger
}

// WithComponent creates a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		base:      l.base.WithPrefix(component),
		component: component,
	}
}

// WithRequestID tags every line of the returned logger with a request id
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{
		base:      l.base.With("request_id", id),
		component: l.component,
	}
}

// WithError attaches err to every line of the returned logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		base:      l.base.With("err", err),
		component: l.component,
	}
}

// Component returns the component name used as log prefix
func (l *Logger) Component() string {
	return l.component
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.base.SetLevel(charmLevels[level])
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.base.Debugf(format, args...)
}

// Info logs info level messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.base.Infof(format, args...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.base.Warnf(format, args...)
}

// Error logs error level messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.base.Errorf(format, args...)
}

// Fatal logs fatal level messages and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.base.Fatalf(format, args...)
}
