package webrtc

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

type loggerFactory struct {
	log logrus.FieldLogger
}

// NewLoggerFactory routes pion's scoped loggers into log. pion's debug and
// trace output land at logrus Trace, its info at Debug.
func NewLoggerFactory(log logrus.FieldLogger) logging.LoggerFactory {
	return loggerFactory{log: log}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveledLogger{entry: f.log.WithField("pion", scope)}
}

type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) Trace(msg string)                          { l.entry.Trace(msg) }
func (l leveledLogger) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l leveledLogger) Debug(msg string)                          { l.entry.Trace(msg) }
func (l leveledLogger) Debugf(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l leveledLogger) Info(msg string)                           { l.entry.Debug(msg) }
func (l leveledLogger) Infof(format string, args ...interface{})  { l.entry.Debugf(format, args...) }
func (l leveledLogger) Warn(msg string)                           { l.entry.Warn(msg) }
func (l leveledLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l leveledLogger) Error(msg string)                          { l.entry.Error(msg) }
func (l leveledLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
