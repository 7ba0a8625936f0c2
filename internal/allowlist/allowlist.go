// Package allowlist decides admission by source IP.
//
// The backing file (authorised_ips.txt, one IPv4 literal per line) is the
// single source of truth and may be edited while the server runs; a new
// entry is honoured on the next admission decision. Reads are cached and
// the cache is invalidated by an fsnotify watch on the file. If the watch
// cannot be established the store falls back to re-reading the file on
// every decision.
package allowlist

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Store struct {
	path    string
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	ips   map[string]struct{}
	order []string
	fresh bool
}

// Open binds a store to path, creating an empty file if none exists.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
	}

	s := &Store{path: path}
	if w, err := fsnotify.NewWatcher(); err == nil {
		if err := w.Add(path); err == nil {
			s.watcher = w
			go s.watch()
		} else {
			w.Close()
		}
	}
	return s, nil
}

func (s *Store) watch() {
	for {
		select {
		case _, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.invalidate()
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// Events may have been missed; force a re-read on the next
			// decision.
			s.invalidate()
		}
	}
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.fresh = false
	s.mu.Unlock()
}

// Contains reports whether ip is currently authorised.
func (s *Store) Contains(ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return false, err
	}
	_, ok := s.ips[ip]
	return ok, nil
}

// Entries returns the authorised IPs in file order.
func (s *Store) Entries() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return nil, err
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *Store) reloadLocked() error {
	if s.fresh && s.watcher != nil {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	ips := make(map[string]struct{})
	var order []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, seen := ips[line]; !seen {
			order = append(order, line)
		}
		ips[line] = struct{}{}
	}
	s.ips = ips
	s.order = order
	s.fresh = true
	return nil
}

// Close releases the file watch.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
