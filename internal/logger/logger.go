package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	serverLog *slog.Logger = slog.Default()
	authLog   *slog.Logger = slog.Default()
)

// Init opens server.log and auth.log (append-only) in dir and installs
// the two process-wide loggers. The server logger also becomes the slog
// default.
func Init(dir string) error {
	srv, err := open(dir + "/server.log")
	if err != nil {
		return err
	}
	auth, err := open(dir + "/auth.log")
	if err != nil {
		return err
	}
	serverLog = srv
	authLog = auth
	slog.SetDefault(serverLog)
	return nil
}

func open(path string) (*slog.Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return slog.New(newLineHandler(f, slog.LevelInfo)), nil
}

// Server returns the server event logger.
func Server() *slog.Logger { return serverLog }

// Auth returns the admission event logger.
func Auth() *slog.Logger { return authLog }

// lineHandler emits "HH:MM:SS - LEVEL - message" lines, appending any
// attrs as "key=value" pairs after the message.
type lineHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newLineHandler(w io.Writer, level slog.Level) *lineHandler {
	return &lineHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	line := r.Time.Format("15:04:05") + " - " + r.Level.String() + " - " + r.Message
	for _, a := range h.attrs {
		line += " " + a.Key + "=" + a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		line += " " + a.Key + "=" + a.Value.String()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *lineHandler) WithGroup(string) slog.Handler { return h }
