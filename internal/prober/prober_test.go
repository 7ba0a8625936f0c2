package prober

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoHello answers every hello frame like a healthy agent.
func echoHello(t *testing.T, conn net.Conn) {
	t.Helper()
	go func() {
		r := wire.NewReader(conn, 0)
		for {
			frame, err := r.ReadFrame()
			if err != nil {
				return
			}
			if string(frame) == wire.VerbHello {
				wire.WriteFrame(conn, []byte(wire.VerbHello))
			}
		}
	}()
}

func newProber(table *session.Table) *Prober {
	return &Prober{Table: table, Interval: 200 * time.Millisecond, Log: discardLogger()}
}

func TestHealthySessionSurvives(t *testing.T) {
	table := session.NewTable()
	peer, conn := net.Pipe()
	defer peer.Close()
	echoHello(t, peer)

	s := session.New(conn, 0)
	table.Append(s)

	p := newProber(table)
	p.Cycle()
	p.Cycle()

	if table.Len() != 1 {
		t.Error("healthy session evicted")
	}
}

func TestDeadSessionEvicted(t *testing.T) {
	table := session.NewTable()
	peer, conn := net.Pipe()

	s := session.New(conn, 0)
	table.Append(s)
	peer.Close()

	newProber(table).Cycle()

	if table.Len() != 0 {
		t.Error("dead session not evicted")
	}
}

func TestSilentSessionEvictedOnTimeout(t *testing.T) {
	table := session.NewTable()
	peer, conn := net.Pipe()
	defer peer.Close()

	// Peer reads probes but never answers.
	go func() {
		r := wire.NewReader(peer, 0)
		for {
			if _, err := r.ReadFrame(); err != nil {
				return
			}
		}
	}()

	s := session.New(conn, 0)
	table.Append(s)

	newProber(table).Cycle()

	if table.Len() != 0 {
		t.Error("silent session not evicted")
	}
}

func TestBusySessionSkipped(t *testing.T) {
	table := session.NewTable()
	peer, conn := net.Pipe()
	defer peer.Close()

	s := session.New(conn, 0)
	table.Append(s)

	// Operator is interacting: the lock is held and the peer would not
	// answer a probe. The prober must neither block nor evict.
	s.Lock()
	defer s.Unlock()

	done := make(chan struct{})
	go func() {
		newProber(table).Cycle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prober blocked on a busy session")
	}

	if table.Len() != 1 {
		t.Error("busy session evicted")
	}
}

func TestDesyncedReplyEvicts(t *testing.T) {
	table := session.NewTable()
	peer, conn := net.Pipe()
	defer peer.Close()

	// Peer answers the probe with a stale command reply.
	go func() {
		r := wire.NewReader(peer, 0)
		if _, err := r.ReadFrame(); err != nil {
			return
		}
		wire.WriteMessage(peer, wire.RequestWith("checkfile", "1"))
	}()

	s := session.New(conn, 0)
	table.Append(s)

	newProber(table).Cycle()

	if table.Len() != 0 {
		t.Error("desynchronised session not evicted")
	}
}
