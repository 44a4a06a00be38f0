package logging

import (
	"context"
	"fmt"
	"log/slog"

	pionlogging "github.com/pion/logging"
)

// PionFactory routes pion's internal logging into logger, one scope per
// subsystem. A nil Logger discards.
type PionFactory struct {
	Logger *slog.Logger
}

func (f PionFactory) NewLogger(scope string) pionlogging.LeveledLogger {
	logger := f.Logger
	if logger == nil {
		logger = Discard()
	}
	return &pionLogger{log: logger.With("scope", scope)}
}

type pionLogger struct {
	log *slog.Logger
}

func (l *pionLogger) logf(level slog.Level, format string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.log.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// pion's trace output is far too chatty for debug.
func (l *pionLogger) Trace(string)                           {}
func (l *pionLogger) Tracef(string, ...interface{})          {}
func (l *pionLogger) Debug(msg string)                       { l.log.Debug(msg) }
func (l *pionLogger) Debugf(format string, a ...interface{}) { l.logf(slog.LevelDebug, format, a...) }
func (l *pionLogger) Info(msg string)                        { l.log.Info(msg) }
func (l *pionLogger) Infof(format string, a ...interface{})  { l.logf(slog.LevelInfo, format, a...) }
func (l *pionLogger) Warn(msg string)                        { l.log.Warn(msg) }
func (l *pionLogger) Warnf(format string, a ...interface{})  { l.logf(slog.LevelWarn, format, a...) }
func (l *pionLogger) Error(msg string)                       { l.log.Error(msg) }
func (l *pionLogger) Errorf(format string, a ...interface{}) { l.logf(slog.LevelError, format, a...) }
