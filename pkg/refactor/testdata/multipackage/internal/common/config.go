package common

// Config holds application configuration
type Config struct {
	Host string
	Port int
}

// Logger provides logging functionality
type Logger struct {
	level LogLevel
}

type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warning
	Error
)

// NewLogger creates a new logger instance
func NewLogger(level LogLevel) *Logger {
	return &Logger{level: level}
}

// Enabled reports whether messages at level are logged.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level
}
