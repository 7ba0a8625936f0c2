package store

import (
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndCountEvents(t *testing.T) {
	s := openTest(t)

	if err := s.RecordEvent("", "10.0.0.9", EventRejected, ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEvent("sess-1", "10.0.0.5", EventAuthorised, ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEvent("sess-1", "10.0.0.5", EventCommand, "sysinfo"); err != nil {
		t.Fatalf("record: %v", err)
	}

	for kind, want := range map[string]int{
		EventRejected:   1,
		EventAuthorised: 1,
		EventCommand:    1,
		EventEvicted:    0,
	} {
		got, err := s.CountEvents(kind)
		if err != nil {
			t.Fatalf("count %s: %v", kind, err)
		}
		if got != want {
			t.Errorf("count(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	s := openTest(t)
	s.RecordEvent("a", "10.0.0.1", EventAuthorised, "")
	s.RecordEvent("a", "10.0.0.1", EventCommand, "disk")
	s.RecordEvent("a", "10.0.0.1", EventEvicted, "")

	events, err := s.RecentEvents(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2 events, got %d", len(events))
	}
	if events[0].Kind != EventEvicted || events[1].Kind != EventCommand {
		t.Errorf("order wrong: %s, %s", events[0].Kind, events[1].Kind)
	}
}

func TestArtifacts(t *testing.T) {
	s := openTest(t)
	err := s.RecordArtifact("sess-1", "10.0.0.5", "sysinfo",
		"client_sysinfo_dumps/20240101120000.123_10.0.0.5_sysinfo", 512)
	if err != nil {
		t.Fatalf("record artifact: %v", err)
	}

	arts, err := s.ListArtifacts(10)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("want 1 artifact, got %d", len(arts))
	}
	a := arts[0]
	if a.Verb != "sysinfo" || a.Bytes != 512 || a.PeerIP != "10.0.0.5" {
		t.Errorf("artifact fields: %+v", a)
	}
}
