package log

import (
	"github.com/kataras/golog"
)

// GologLogger implements Logger on top of github.com/kataras/golog, giving
// callers golog's colorized, leveled output when they want more than
// DefaultLogger's plain stderr lines. Only the four format-string methods
// of Logger are exposed.
type GologLogger struct {
	logger *golog.Logger
	level  Level
}

var _ Logger = (*GologLogger)(nil)

func NewGologLogger(logger *golog.Logger) *GologLogger {
	return &GologLogger{logger: logger, level: LevelInfo}
}

func (l *GologLogger) Debug(format string, v ...any) {
	if l.level <= LevelDebug {
		l.logger.Debugf(format, v...)
	}
}

func (l *GologLogger) Info(format string, v ...any) {
	if l.level <= LevelInfo {
		l.logger.Infof(format, v...)
	}
}

func (l *GologLogger) Warn(format string, v ...any) {
	if l.level <= LevelWarn {
		l.logger.Warnf(format, v...)
	}
}

func (l *GologLogger) Error(format string, v ...any) {
	if l.level <= LevelError {
		l.logger.Errorf(format, v...)
	}
}

func (l *GologLogger) SetLevel(level Level) {
	l.level = level
	switch level {
	case LevelDebug:
		l.logger.SetLevel("debug")
	case LevelInfo:
		l.logger.SetLevel("info")
	case LevelWarn:
		l.logger.SetLevel("warn")
	case LevelError:
		l.logger.SetLevel("error")
	case LevelNone:
		l.logger.SetLevel("disable")
	}
}

func (l *GologLogger) GetLevel() Level {
	return l.level
}
