package logger

import (
	"log"
	"log/slog"
)

// New returns a stdlib logger that forwards into slog under a component
// attribute, for APIs that only accept *log.Logger (http.Server.ErrorLog).
func New(base *slog.Logger, component string) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), slog.LevelError)
}
