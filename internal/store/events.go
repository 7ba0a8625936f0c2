package store

import (
	"fmt"
	"time"
)

// Event kinds.
const (
	EventAuthorised = "authorised"
	EventRejected   = "rejected"
	EventEvicted    = "evicted"
	EventKilled     = "killed"
	EventCommand    = "command"
	EventShutdown   = "shutdown"
)

type Event struct {
	ID        int64
	SessionID string
	PeerIP    string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

func (s *Store) RecordEvent(sessionID, peerIP, kind, detail string) error {
	_, err := s.db.Exec(
		"INSERT INTO events (session_id, peer_ip, kind, detail) VALUES (?, ?, ?, ?)",
		sessionID, peerIP, kind, detail)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (s *Store) CountEvents(kind string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE kind = ?", kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *Store) RecentEvents(limit int) ([]*Event, error) {
	rows, err := s.db.Query(
		"SELECT id, session_id, peer_ip, kind, detail, created_at FROM events ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.PeerIP, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type Artifact struct {
	ID        int64
	SessionID string
	PeerIP    string
	Verb      string
	Path      string
	Bytes     int64
	CreatedAt time.Time
}

func (s *Store) RecordArtifact(sessionID, peerIP, verb, path string, bytes int64) error {
	_, err := s.db.Exec(
		"INSERT INTO artifacts (session_id, peer_ip, verb, path, bytes) VALUES (?, ?, ?, ?, ?)",
		sessionID, peerIP, verb, path, bytes)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

func (s *Store) ListArtifacts(limit int) ([]*Artifact, error) {
	rows, err := s.db.Query(
		"SELECT id, session_id, peer_ip, verb, path, bytes, created_at FROM artifacts ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a := &Artifact{}
		if err := rows.Scan(&a.ID, &a.SessionID, &a.PeerIP, &a.Verb, &a.Path, &a.Bytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
