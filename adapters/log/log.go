// Package stdlogadapter implements ratelimiter.Logger with the standard log
// package.
package stdlogadapter

import (
	"log"
)

// StdLogger implements ratelimiter.Logger using Go standard library log.
// The standard logger has no levels; each line is prefixed with its level
// and Debug lines are dropped unless Verbose is set.
type StdLogger struct {
	logger  *log.Logger
	verbose bool
}

// New creates a new StdLogger. If nil is passed, uses the default logger.
func New(l *log.Logger) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{
		logger: l,
	}
}

// Verbose enables debug output.
func (s *StdLogger) Verbose() *StdLogger {
	s.verbose = true
	return s
}

// Debugf logs a debug-level message
func (s *StdLogger) Debugf(format string, args ...interface{}) {
	if s.verbose {
		s.logger.Printf("[DEBUG] "+format, args...)
	}
}

// Infof logs an info-level message
func (s *StdLogger) Infof(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

// Errorf logs an error-level message
func (s *StdLogger) Errorf(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}
