package session

import (
	"sync"

	"github.com/google/uuid"
)

// Table is the ordered collection of live sessions. All mutation is
// serialised under one mutex; callers snapshot the entries they need and
// do connection I/O outside the lock.
type Table struct {
	mu       sync.Mutex
	sessions []*Session
}

func NewTable() *Table {
	return &Table{}
}

// Append admits a session at the end of the table.
func (t *Table) Append(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = append(t.sessions, s)
}

// Remove evicts s. It reports whether s was still present.
func (t *Table) Remove(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.sessions {
		if cur == s {
			t.sessions = append(t.sessions[:i], t.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot returns the current sessions in table order.
func (t *Table) Snapshot() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, len(t.sessions))
	copy(out, t.sessions)
	return out
}

func (t *Table) contains(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cur := range t.sessions {
		if cur.ID == id {
			return true
		}
	}
	return false
}

// Listing is a positional view of the table as last displayed to the
// operator. Index selection resolves against this snapshot, so an
// eviction between display and selection can never shift the operator
// onto a neighbouring session.
type Listing []*Session

// Listing captures the positional view to display.
func (t *Table) Listing() Listing {
	return Listing(t.Snapshot())
}

// Resolve maps a displayed index back to its session, reporting false if
// the index was never displayed or the session has since been evicted.
func (l Listing) Resolve(t *Table, n int) (*Session, bool) {
	if n < 0 || n >= len(l) {
		return nil, false
	}
	s := l[n]
	if !t.contains(s.ID) {
		return nil, false
	}
	return s, true
}
