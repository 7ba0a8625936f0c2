// Package agent is the endpoint side of the protocol: a single loop that
// reads frames, executes known verbs and writes at most one reply each.
// Unknown or empty frames are ignored; the agent never originates
// traffic of its own.
package agent

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ehrlich-b/tether/internal/certs"
	"github.com/ehrlich-b/tether/internal/wire"
)

// errShutdown unwinds the serve loop when the server says exit.
var errShutdown = errors.New("agent: shutdown requested")

type Agent struct {
	Addr          string
	Reconnect     time.Duration
	MaxFrameBytes int
	Log           *slog.Logger
}

// Run dials the server and serves until it sends exit. Lost connections
// are redialled after the reconnect interval; an endpoint that gives up
// on the first failed dial is an endpoint someone has to walk over to.
func (a *Agent) Run() error {
	for {
		conn, err := tls.Dial("tcp", a.Addr, certs.ClientConfig())
		if err != nil {
			a.Log.Warn("connect failed, retrying", "server", a.Addr, "error", err.Error())
			time.Sleep(a.Reconnect)
			continue
		}
		a.Log.Info("connected", "server", a.Addr)

		err = a.Serve(conn)
		conn.Close()
		if errors.Is(err, errShutdown) {
			a.Log.Info("server requested shutdown")
			return nil
		}
		a.Log.Warn("connection lost, reconnecting", "error", fmt.Sprint(err))
		time.Sleep(a.Reconnect)
	}
}

// Serve processes frames from conn in arrival order until the stream
// ends or an exit frame arrives (errShutdown).
func (a *Agent) Serve(conn net.Conn) error {
	r := wire.NewReader(conn, a.MaxFrameBytes)
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			return err
		}
		m := wire.Parse(frame)
		if m.Verb == "" {
			continue
		}
		h, known := handlers[m.Verb]
		if !known {
			continue
		}
		reply, err := h(a, m)
		if err != nil {
			if errors.Is(err, errShutdown) {
				return errShutdown
			}
			// Handler failures that produce no denial frame are logged
			// and the session carries on.
			a.Log.Error("command failed", "verb", m.Verb, "error", err.Error())
			continue
		}
		if reply != nil {
			if err := wire.WriteMessage(conn, *reply); err != nil {
				return err
			}
		}
	}
}
