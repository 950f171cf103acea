package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel defines log level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// zerologLevel maps a LogLevel onto the encoder's level
func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}

// ParseLevel parses a level name from config, defaulting to INFO
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger encodes leveled entries with zerolog. The Logger itself is the
// encoder's sink: JSON lines go to a daily rotated file and, when enabled,
// through a ConsoleWriter to stderr.
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	logDir  string
	maxDays int
	file    *os.File
	date    string
	console io.Writer
	zl      zerolog.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Config logger configuration
type Config struct {
	LogDir     string
	Level      LogLevel
	MaxDays    int  // rotated files kept, default 7
	ConsoleOut bool // mirror entries to stderr
}

// Init initializes the default logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(cfg)
	})
	return err
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		level:   cfg.Level,
		logDir:  cfg.LogDir,
		maxDays: cfg.MaxDays,
	}
	if cfg.ConsoleOut {
		l.console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	l.mu.Lock()
	err := l.rotate()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	l.zl = zerolog.New(l).Level(cfg.Level.zerologLevel()).With().Timestamp().Logger()
	return l, nil
}

// Write appends one encoded entry. Must not be called with mu held.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(); err != nil {
		return 0, err
	}
	n, err := l.file.Write(p)
	if l.console != nil {
		_, _ = l.console.Write(p)
	}
	return n, err
}

// rotate opens today's file, closing the previous one. Must be called
// with mu held.
func (l *Logger) rotate() error {
	today := time.Now().Format("2006-01-02")
	if l.file != nil && l.date == today {
		return nil
	}
	if l.file != nil {
		l.file.Close()
	}

	name := filepath.Join(l.logDir, "campusbot-"+today+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file, l.date = f, today

	go l.prune()
	return nil
}

// prune keeps the newest maxDays files; names sort by date
func (l *Logger) prune() {
	files, err := filepath.Glob(filepath.Join(l.logDir, "campusbot-*.log"))
	if err != nil || len(files) <= l.maxDays {
		return
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-l.maxDays] {
		os.Remove(f)
	}
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.zl.WithLevel(level.zerologLevel()).Msgf(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Printf logs at DEBUG; it lets the logger stand in for third-party
// Printf/Println logger interfaces.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Println logs at DEBUG
func (l *Logger) Println(args ...interface{}) {
	l.log(DEBUG, "%s", strings.TrimSpace(fmt.Sprintln(args...)))
}

// Zerolog exposes the underlying encoder for libraries that take a
// zerolog.Logger directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Close closes the current log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// GetWriter returns an io.Writer for the logger at the specified level
func (l *Logger) GetWriter(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

// logWriter implements io.Writer interface
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.logger.log(w.level, "%s", msg)
	}
	return len(p), nil
}

// Package-level functions using the default logger

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

// Close closes the default logger
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger
}
