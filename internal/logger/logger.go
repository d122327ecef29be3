package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Options controls how a Logger is built
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info, or debug when Verbose is set.
	Level string
	// Encoding is "console" or "json"
	Encoding string
	// File additionally receives every log line when set
	File string
	// Verbose enables debug output
	Verbose bool
}

// Logger provides leveled, structured logging for the notifier
type Logger struct {
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	logFile *os.File
}

// NewLogger creates a console logger writing to stderr and, if logFilePath is set, to that file
func NewLogger(verbose bool, logFilePath string) (*Logger, error) {
	return New(Options{Verbose: verbose, File: logFilePath})
}

// New creates a logger from options
func New(opts Options) (*Logger, error) {
	level, err := parseLevel(opts.Level, opts.Verbose)
	if err != nil {
		return nil, err
	}
	atom := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Encoding) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log encoding %q", opts.Encoding)
	}

	l := &Logger{level: atom}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.logFile = f
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), atom)
	l.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return l, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func parseLevel(level string, verbose bool) (zapcore.Level, error) {
	if level == "" {
		if verbose {
			return zapcore.DebugLevel, nil
		}
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Close flushes buffered entries and closes the log file if open
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil // Prevent double close
		return err
	}
	return nil
}

// With returns a child logger carrying the given key/value pairs on every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), level: l.level}
}

// DebugEnabled reports whether debug output is on
func (l *Logger) DebugEnabled() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Debug logs a debug message (only if verbose)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Infof is an alias for Info
func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Errorf is an alias for Error
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Debugf is an alias for Debug
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Warnf is an alias for Warn
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Step logs a step in the process with timing
func (l *Logger) Step(name string) *Step {
	return &Step{
		logger:    l,
		name:      name,
		startTime: time.Now(),
	}
}

// Get returns the global logger instance, creating it if necessary
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = NewLogger(defaultVerboseFromEnv(), "")
		if globalLogger == nil {
			globalLogger = NewNop()
		}
	}
	return globalLogger
}

// SetGlobal sets the global logger instance
func SetGlobal(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Step represents a timed step in the process
type Step struct {
	logger    *Logger
	name      string
	startTime time.Time
}

// Complete marks the step as complete and logs the duration
func (s *Step) Complete() {
	duration := time.Since(s.startTime)
	s.logger.Info("%s completed in %.2fs", s.name, duration.Seconds())
}

// Fail marks the step as failed and logs the error
func (s *Step) Fail(err error) {
	duration := time.Since(s.startTime)
	s.logger.Error("%s failed after %.2fs: %v", s.name, duration.Seconds(), err)
}

func defaultVerboseFromEnv() bool {
	if parseBoolEnv(os.Getenv("JENKINS_NOTIFIER_DEBUG")) {
		return true
	}
	if parseBoolEnv(os.Getenv("LOG_VERBOSE")) {
		return true
	}

	level := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	return level == "debug"
}

func parseBoolEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
