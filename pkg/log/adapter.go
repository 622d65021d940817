package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogger implements badger.Logger on top of a logrus entry.
// Badger is chatty at info level (compactions, value log GC), so its info
// messages are logged at debug.
type BadgerLogger struct {
	entry *logrus.Entry
}

// NewBadgerLogger returns a badger logger tagged with component=badger
func NewBadgerLogger(entry *logrus.Entry) *BadgerLogger {
	return &BadgerLogger{entry: entry.WithField("component", "badger")}
}

// Errorf logs an error message
func (l *BadgerLogger) Errorf(f string, v ...interface{}) { l.entry.Errorf(trim(f), v...) }

// Warningf logs a warning message
func (l *BadgerLogger) Warningf(f string, v ...interface{}) { l.entry.Warnf(trim(f), v...) }

// Infof logs badger info output at debug level
func (l *BadgerLogger) Infof(f string, v ...interface{}) { l.entry.Debugf(trim(f), v...) }

// Debugf logs a debug message
func (l *BadgerLogger) Debugf(f string, v ...interface{}) { l.entry.Debugf(trim(f), v...) }

// badger terminates most format strings with a newline
func trim(f string) string {
	return strings.TrimRight(f, "\n")
}

// NewLogger creates a text logger at the given level. An unparsable level
// falls back to info and is reported as a warning.
func NewLogger(levelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", levelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}
	return log
}
