// Package server accepts agent connections and admits them by source IP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ehrlich-b/tether/internal/allowlist"
	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/store"
)

const handshakeTimeout = 10 * time.Second

type Server struct {
	Addr          string
	TLS           *tls.Config
	Allow         *allowlist.Store
	Table         *session.Table
	MaxFrameBytes int
	Log           *slog.Logger
	AuthLog       *slog.Logger
	Store         *store.Store

	ln net.Listener
}

// Listen binds the TLS listener.
func (s *Server) Listen() error {
	ln, err := tls.Listen("tcp", s.Addr, s.TLS)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	s.ln = ln
	s.Log.Info("Socket listening for connections on " + s.Addr)
	return nil
}

// AcceptLoop admits connections until the listener closes. Accept errors
// end the loop; everything else is logged and survived.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.Log.Error("accept error", "error", err.Error())
			}
			return
		}
		s.admit(conn)
	}
}

func (s *Server) admit(conn net.Conn) {
	ip, port, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		ip, port = conn.RemoteAddr().String(), "0"
	}

	// The allow-list is consulted before the TLS handshake: unlisted
	// sources get their connection dropped without spending a key
	// exchange on them.
	ok, err := s.Allow.Contains(ip)
	if err != nil {
		s.AuthLog.Error("Error authorising client: " + ip + ":" + port)
		conn.Close()
		return
	}
	if !ok {
		s.AuthLog.Info("Client connected and rejected: " + ip + ":" + port)
		if s.Store != nil {
			s.Store.RecordEvent("", ip, store.EventRejected, "")
		}
		conn.Close()
		return
	}

	if tc, isTLS := conn.(*tls.Conn); isTLS {
		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := tc.HandshakeContext(ctx)
		cancel()
		if err != nil {
			s.Log.Error("TLS handshake error with "+ip+":"+port, "error", err.Error())
			conn.Close()
			return
		}
	}

	sess := session.New(conn, s.MaxFrameBytes)
	s.Table.Append(sess)
	s.AuthLog.Info("Client connected and authorised: " + ip + ":" + port)
	if s.Store != nil {
		s.Store.RecordEvent(sess.ID.String(), ip, store.EventAuthorised, "")
	}
}

// Close stops accepting. Live sessions are untouched.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
