// Package prober evicts dead sessions.
//
// Every cycle it walks the table, sends each idle session a hello frame
// and expects a hello back within one cycle. Sessions whose exclusive
// lock is held are in use by the operator and are skipped; interleaving
// a probe with an in-flight command would corrupt the reply stream.
package prober

import (
	"context"
	"log/slog"
	"time"

	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/store"
	"github.com/ehrlich-b/tether/internal/wire"
)

type Prober struct {
	Table    *session.Table
	Interval time.Duration
	Log      *slog.Logger
	Store    *store.Store
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cycle()
		}
	}
}

// Cycle probes every idle session once.
func (p *Prober) Cycle() {
	for _, s := range p.Table.Snapshot() {
		if !s.TryLock() {
			continue
		}
		alive := p.probe(s)
		s.Unlock()
		if !alive {
			p.evict(s)
		}
	}
}

func (p *Prober) probe(s *session.Session) bool {
	if err := s.Send(wire.Request(wire.VerbHello)); err != nil {
		return false
	}
	reply, err := s.RecvTimeout(p.Interval)
	if err != nil {
		return false
	}
	// Anything but hello means the reply stream is desynchronised; the
	// session cannot be trusted for further commands.
	return reply.Verb == wire.VerbHello && !reply.HasBody
}

func (p *Prober) evict(s *session.Session) {
	s.Close()
	if p.Table.Remove(s) {
		p.Log.Info("Connection closed: " + s.IP)
		if p.Store != nil {
			p.Store.RecordEvent(s.ID.String(), s.IP, store.EventEvicted, "liveness probe failed")
		}
	}
}
