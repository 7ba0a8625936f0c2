package allowlist

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T, initial string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authorised_ips.txt")
	if initial != "" {
		if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpenCreatesMissingFile(t *testing.T) {
	s, path := openStore(t, "")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}
	ok, err := s.Contains("10.0.0.5")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if ok {
		t.Error("empty list must authorise nobody")
	}
}

func TestContains(t *testing.T) {
	s, _ := openStore(t, "10.0.0.5\n192.168.1.20\n")
	for ip, want := range map[string]bool{
		"10.0.0.5":     true,
		"192.168.1.20": true,
		"10.0.0.6":     false,
	} {
		got, err := s.Contains(ip)
		if err != nil {
			t.Fatalf("contains %s: %v", ip, err)
		}
		if got != want {
			t.Errorf("Contains(%s) = %v, want %v", ip, got, want)
		}
	}
}

func TestLiveEdit(t *testing.T) {
	s, path := openStore(t, "10.0.0.5\n")

	// Prime the cache, then grow the file behind the store's back.
	if ok, _ := s.Contains("10.0.0.9"); ok {
		t.Fatal("10.0.0.9 authorised prematurely")
	}
	if err := os.WriteFile(path, []byte("10.0.0.5\n10.0.0.9\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// The fsnotify event may lag the write briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok, err := s.Contains("10.0.0.9")
		if err != nil {
			t.Fatalf("contains: %v", err)
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("new entry never honoured")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEntriesOrderAndBlankLines(t *testing.T) {
	s, _ := openStore(t, "10.0.0.5\n\n 192.168.1.20 \n10.0.0.5\n")
	got, err := s.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(got) != 2 || got[0] != "10.0.0.5" || got[1] != "192.168.1.20" {
		t.Errorf("entries = %v", got)
	}
}
