package canbus

import (
	"context"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations to log.
type LogOption uint8

const (
	LogNone  LogOption = 0
	LogRead  LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedBus wraps the given Bus and logs selected operations at the given
// level. Errors are always logged at slog.LevelError for the selected
// directions.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption) Bus {
	return NewLoggedBusWithFilter(inner, logger, level, opts, nil)
}

// NewLoggedBusWithFilter is NewLoggedBus restricted to frames matching filter.
// A nil filter logs every frame.
func NewLoggedBusWithFilter(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

type loggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

func (l *loggedBus) logFrame(msg string, f Frame) {
	if !l.filter.Match(f) {
		return
	}
	l.logger.Log(context.Background(), l.level, msg,
		"id", f.ID,
		"extended", f.Extended,
		"rtr", f.RTR,
		"len", int(f.Len),
		"data", f.Payload(),
		"string", f.String(),
	)
}

// Send logs the frame and the result when write logging is enabled.
func (l *loggedBus) Send(frame Frame) error {
	if l.opts&LogWrite != 0 {
		l.logFrame("canbus send", frame)
	}
	err := l.inner.Send(frame)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "canbus send error",
			"id", frame.ID,
			"error", err,
		)
	}
	return err
}

// TryReceive logs received frames and receive errors when read logging is
// enabled. Empty polls are not logged.
func (l *loggedBus) TryReceive() (Frame, bool, error) {
	f, ok, err := l.inner.TryReceive()
	if l.opts&LogRead == 0 {
		return f, ok, err
	}
	if err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "canbus receive error",
			"error", err,
		)
	} else if ok {
		l.logFrame("canbus receive", f)
	}
	return f, ok, err
}

// Close forwards to the inner Bus without logging.
func (l *loggedBus) Close() error {
	return l.inner.Close()
}
