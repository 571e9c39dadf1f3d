package notify

import "log/slog"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient, user-visible message.
type Notification struct {
	Level   Level
	Message string
}

func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message}
}

func Error(message string) Notification {
	return Notification{Level: LevelError, Message: message}
}

type Notifier interface {
	Notify(Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Log writes notifications through slog.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.Level == LevelError {
		logger.Error(n.Message, "notification", string(n.Level))
		return
	}
	logger.Info(n.Message, "notification", string(n.Level))
}

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})
