package session

import (
	"net"
	"sync"
	"testing"

	"github.com/ehrlich-b/tether/internal/wire"
)

func pipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	s := New(server, 0)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return s, client
}

func TestAppendRemoveLen(t *testing.T) {
	table := NewTable()
	a, _ := pipeSession(t)
	b, _ := pipeSession(t)
	c, _ := pipeSession(t)

	table.Append(a)
	table.Append(b)
	table.Append(c)
	if table.Len() != 3 {
		t.Fatalf("want 3 sessions, got %d", table.Len())
	}

	if !table.Remove(b) {
		t.Fatal("remove reported b missing")
	}
	if table.Remove(b) {
		t.Fatal("double remove succeeded")
	}

	snap := table.Snapshot()
	if len(snap) != 2 || snap[0] != a || snap[1] != c {
		t.Errorf("order not preserved after remove: %v", snap)
	}
}

func TestListingResolveSurvivesEviction(t *testing.T) {
	table := NewTable()
	a, _ := pipeSession(t)
	b, _ := pipeSession(t)
	table.Append(a)
	table.Append(b)

	listing := table.Listing()

	// Evict the first session after the listing was shown. Index 1 must
	// still mean b, and index 0 must now report gone, not alias onto b.
	table.Remove(a)

	if got, ok := listing.Resolve(table, 1); !ok || got != b {
		t.Errorf("index 1 resolved to %v, ok=%v", got, ok)
	}
	if _, ok := listing.Resolve(table, 0); ok {
		t.Error("evicted session still resolvable")
	}
	if _, ok := listing.Resolve(table, 2); ok {
		t.Error("out-of-range index resolvable")
	}
}

func TestConcurrentAppendRemove(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()
			s := New(server, 0)
			table.Append(s)
			table.Remove(s)
		}()
	}
	wg.Wait()
	if table.Len() != 0 {
		t.Errorf("want empty table, got %d", table.Len())
	}
}

func TestSessionSendRecv(t *testing.T) {
	s, peer := pipeSession(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Send(wire.Request(wire.VerbHello))
	}()

	frame, err := wire.NewReader(peer, 0).ReadFrame()
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if string(frame) != "hello" {
		t.Errorf("want hello, got %q", frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("send: %v", err)
	}

	go wire.WriteMessage(peer, wire.RequestWith(wire.VerbCheckFile, "1"))
	m, err := s.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if m.Verb != wire.VerbCheckFile || m.Body != "1" {
		t.Errorf("got %+v", m)
	}
}

func TestTryLockSkip(t *testing.T) {
	s, _ := pipeSession(t)
	s.Lock()
	if s.TryLock() {
		t.Fatal("TryLock acquired a held lock")
	}
	s.Unlock()
	if !s.TryLock() {
		t.Fatal("TryLock failed on a free lock")
	}
	s.Unlock()
}
