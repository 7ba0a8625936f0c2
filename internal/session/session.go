package session

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/tether/internal/wire"
)

// Session is one authorised agent connection.
//
// The embedded mutex is the session's exclusive-use lock: the operator
// console holds it for the whole of an interactive sub-loop, the liveness
// prober TryLocks and skips rather than interleave a probe with an
// in-flight command. While held, the holder is the only reader and the
// only writer on the connection.
type Session struct {
	ID          uuid.UUID
	IP          string
	Port        int
	ConnectedAt time.Time

	conn   net.Conn
	reader *wire.Reader
	mu     sync.Mutex
}

// New wraps an accepted connection. The peer address is parsed once at
// admission time.
func New(conn net.Conn, maxFrame int) *Session {
	ip, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		ip = conn.RemoteAddr().String()
	}
	port, _ := strconv.Atoi(portStr)
	return &Session{
		ID:          uuid.New(),
		IP:          ip,
		Port:        port,
		ConnectedAt: time.Now(),
		conn:        conn,
		reader:      wire.NewReader(conn, maxFrame),
	}
}

// Lock acquires the exclusive-use lock.
func (s *Session) Lock() { s.mu.Lock() }

// TryLock acquires the exclusive-use lock without blocking.
func (s *Session) TryLock() bool { return s.mu.TryLock() }

// Unlock releases the exclusive-use lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Send writes one message frame. The caller must hold the session lock.
func (s *Session) Send(m wire.Message) error {
	return wire.WriteMessage(s.conn, m)
}

// Recv reads the next message frame. The caller must hold the session lock.
func (s *Session) Recv() (wire.Message, error) {
	frame, err := s.reader.ReadFrame()
	if err != nil {
		return wire.Message{}, err
	}
	return wire.Parse(frame), nil
}

// RecvTimeout reads the next message frame, giving up after d.
func (s *Session) RecvTimeout(d time.Duration) (wire.Message, error) {
	s.conn.SetReadDeadline(time.Now().Add(d))
	defer s.conn.SetReadDeadline(time.Time{})
	return s.Recv()
}

// Close tears down the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Addr renders the peer as ip:port for display and logs.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}
