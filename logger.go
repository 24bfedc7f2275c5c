package wheelnet

import (
	"log"
	"os"
)

// Logger is the structured-enough logging surface every wheelnet
// component is constructed with. It is satisfied by *StdLogger and by any
// adapter an application wraps around its own logging library.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// StdLogger is the default Logger, a thin level-tagging wrapper around the
// standard library's *log.Logger — no file rotation, no structured
// encoding; this core has no opinion on either.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger builds a StdLogger writing to os.Stderr with a microsecond
// timestamp prefix.
func NewStdLogger() *StdLogger {
	return &StdLogger{l: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
}

func (s *StdLogger) Infof(format string, args ...interface{})  { s.l.Printf("INFO  "+format, args...) }
func (s *StdLogger) Warnf(format string, args ...interface{})  { s.l.Printf("WARN  "+format, args...) }
func (s *StdLogger) Errorf(format string, args ...interface{}) { s.l.Printf("ERROR "+format, args...) }

var defaultLogger Logger = NewStdLogger()

// nopLogger discards everything; useful in tests that don't want stderr
// noise.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
