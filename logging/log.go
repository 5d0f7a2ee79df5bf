// Package logging is a small leveled logger shared by the assembly engine.
// Messages go through the standard log package unless a LogConfig routes
// them to a rotating file.
package logging

import (
	"fmt"
	"log"
	"time"

	"github.com/natefinch/lumberjack"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

// mode is the minimum severity written.
var mode = InfoMode

// Logger provides a way for the application to log messages at different severities.
type Logger interface {
	// Debugf formats its arguments analogous to fmt.Printf and records the text as a log
	// message at Debug level.
	Debugf(format string, args ...interface{})

	// Infof is like Debugf, but at Info level.
	Infof(format string, args ...interface{})

	// Warningf is like Debugf, but at Warning level.
	Warningf(format string, args ...interface{})

	// Errorf is like Debugf, but at Error level.
	Errorf(format string, args ...interface{})
}

// SetLogMode sets the severity required for a log message to be printed.
// For example, SetLogMode(logging.WarningMode) will log any calls using
// Warningf or Errorf. To turn off all logging, use SilentMode.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

// Mode returns the current severity threshold.
func Mode() ModeFlag { return mode }

func Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		logger.Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if mode <= WarningMode {
		logger.Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if mode <= ErrorMode {
		logger.Errorf(format, args...)
	}
}

// Prefixed returns a Logger that prepends prefix to every message, e.g. a
// session id. It honors the package log mode.
func Prefixed(prefix string) Logger {
	return prefixLogger{prefix: prefix}
}

type prefixLogger struct {
	prefix string
}

func (p prefixLogger) Debugf(format string, args ...interface{}) {
	Debugf("[%s] %s", p.prefix, fmt.Sprintf(format, args...))
}

func (p prefixLogger) Infof(format string, args ...interface{}) {
	Infof("[%s] %s", p.prefix, fmt.Sprintf(format, args...))
}

func (p prefixLogger) Warningf(format string, args ...interface{}) {
	Warningf("[%s] %s", p.prefix, fmt.Sprintf(format, args...))
}

func (p prefixLogger) Errorf(format string, args ...interface{}) {
	Errorf("[%s] %s", p.prefix, fmt.Sprintf(format, args...))
}

// TimeLog adds elapsed time to logging.
// Example:
//
//	mylog := logging.NewTimeLog()
//	...
//	mylog.Debugf("stuff happened")  // Appends elapsed time from NewTimeLog() to message.
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{logger, time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		t.logger.Debugf(format+": %s", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		t.logger.Infof(format+": %s", append(args, time.Since(t.start))...)
	}
}

type stdLogger struct {
	*lumberjack.Logger
}

var logger = stdLogger{}

type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
}

// SetLogger creates a logger that saves to a rotating log file.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

// Shutdown closes the rotating log file, if any.
func Shutdown() {
	if logger.Logger != nil {
		logger.Close()
	}
}

// --- Logger implementation ----

func (slog stdLogger) Debugf(format string, args ...interface{}) {
	log.Printf("   DEBUG "+format, args...)
}

func (slog stdLogger) Infof(format string, args ...interface{}) {
	log.Printf("    INFO "+format, args...)
}

func (slog stdLogger) Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

func (slog stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf("   ERROR "+format, args...)
}
