package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// JSONLogger writes one JSON object per message to stderr.
// Verbose messages are emitted at debug level and only when verbose is on.
type JSONLogger struct {
	entry *logrus.Entry
}

// NewJSONLogger creates a JSONLogger writing to stderr.
func NewJSONLogger(verbose bool) *JSONLogger {
	return NewJSONLoggerTo(os.Stderr, verbose)
}

// NewJSONLoggerTo creates a JSONLogger writing to out.
func NewJSONLoggerTo(out io.Writer, verbose bool) *JSONLogger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return &JSONLogger{entry: logrus.NewEntry(l)}
}

// With returns a logger that adds key=value to every event.
func (l *JSONLogger) With(key string, value interface{}) *JSONLogger {
	return &JSONLogger{entry: l.entry.WithField(key, value)}
}

// Verbose logs at debug level.
func (l *JSONLogger) Verbose(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs at info level.
func (l *JSONLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs at warning level.
func (l *JSONLogger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs at error level.
func (l *JSONLogger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
