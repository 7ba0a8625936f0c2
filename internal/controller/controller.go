// Package controller drives the request/reply protocol from the server
// side. Every operation is one synchronous exchange on a session the
// caller has locked: write the request frame, read exactly one reply
// frame, check its verb, act on its body. At most one request is ever in
// flight per session.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ehrlich-b/tether/internal/files"
	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/store"
	"github.com/ehrlich-b/tether/internal/wire"
)

// ProtocolError reports a reply whose verb does not match the request.
// The command is aborted but the session survives; the frame may belong
// to an earlier, timed-out exchange.
type ProtocolError struct {
	Want string
	Got  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("controller: expected %s reply, got %q", e.Want, e.Got)
}

// exitGrace is how long a peer gets to act on an exit frame before the
// connection is torn down underneath it.
const exitGrace = time.Second

type Controller struct {
	Files *files.Manager
	Log   *slog.Logger
	Store *store.Store
}

// exchange performs one request-reply round trip. The caller must hold
// the session lock.
func (c *Controller) exchange(s *session.Session, req wire.Message, wantVerb string) (wire.Message, error) {
	if err := s.Send(req); err != nil {
		return wire.Message{}, err
	}
	reply, err := s.Recv()
	if err != nil {
		return wire.Message{}, err
	}
	if reply.Verb != wantVerb {
		return wire.Message{}, &ProtocolError{Want: wantVerb, Got: reply.Verb}
	}
	c.recordCommand(s, req.Verb)
	return reply, nil
}

func (c *Controller) recordCommand(s *session.Session, verb string) {
	if c.Store != nil {
		c.Store.RecordEvent(s.ID.String(), s.IP, store.EventCommand, verb)
	}
}

// Processes requests the remote process table and persists it. Returns
// the artifact path.
func (c *Controller) Processes(s *session.Session) (string, error) {
	reply, err := c.exchange(s, wire.Request(wire.VerbProcesses), wire.VerbProcesses)
	if err != nil {
		return "", err
	}
	path, err := c.persistDump(s, wire.VerbProcesses, files.ProcessDumps, reply.Text())
	if err != nil {
		return "", err
	}
	c.Log.Info(fmt.Sprintf("Process dump of client %s saved to %s", s.IP, path))
	return path, nil
}

// Sysinfo requests OS, CPU and memory details; persists and returns the
// body for display.
func (c *Controller) Sysinfo(s *session.Session) (body, path string, err error) {
	reply, err := c.exchange(s, wire.Request(wire.VerbSysinfo), wire.VerbSysinfo)
	if err != nil {
		return "", "", err
	}
	body = reply.Text()
	path, err = c.persistDump(s, wire.VerbSysinfo, files.SysinfoDumps, body)
	if err != nil {
		return body, "", err
	}
	c.Log.Info(fmt.Sprintf("Sysinfo dump of client %s saved to %s", s.IP, path))
	return body, path, nil
}

// Disk requests disk usage; persists and returns the body for display.
func (c *Controller) Disk(s *session.Session) (body, path string, err error) {
	reply, err := c.exchange(s, wire.Request(wire.VerbDisk), wire.VerbDiskInfo)
	if err != nil {
		return "", "", err
	}
	body = reply.Text()
	path, err = c.persistDump(s, wire.VerbDisk, files.DiskDumps, body)
	if err != nil {
		return body, "", err
	}
	c.Log.Info(fmt.Sprintf("Disk information dump of client %s saved to %s", s.IP, path))
	return body, path, nil
}

// ListDir asks for a remote directory listing. Lookup failures come back
// as plain text in the listing body ("Directory not found", "Permission
// denied", "Not a directory"); they are display results, not errors.
func (c *Controller) ListDir(s *session.Session, dir string) (string, error) {
	reply, err := c.exchange(s, wire.RequestWith(wire.VerbListDir, dir), wire.VerbDirListing)
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}

// persistDump writes an introspection reply body under the given sink.
func (c *Controller) persistDump(s *session.Session, verb, sink, body string) (string, error) {
	name := dumpFilename(time.Now(), s.IP, verb)
	path := c.Files.Path(sink, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	if c.Store != nil {
		c.Store.RecordArtifact(s.ID.String(), s.IP, verb, path, int64(len(body)))
	}
	return path, nil
}

// dumpFilename stamps artifacts to the millisecond so the same verb run
// twice in one second cannot collide.
func dumpFilename(now time.Time, ip, verb string) string {
	return now.Format("20060102150405.000") + "_" + ip + "_" + verb
}

// Kill sends the farewell frame, waits out the grace period, closes the
// connection and removes the session.
func (c *Controller) Kill(s *session.Session, table *session.Table) error {
	err := s.Send(wire.Request(wire.VerbExit))
	time.Sleep(exitGrace)
	s.Close()
	table.Remove(s)
	c.Log.Info(fmt.Sprintf("Server terminated connection with %s", s.Addr()))
	if c.Store != nil {
		c.Store.RecordEvent(s.ID.String(), s.IP, store.EventKilled, "")
	}
	if err != nil && !errors.Is(err, wire.ErrPeerClosed) {
		return err
	}
	return nil
}

// Shutdown issues exit to every live session and closes them all.
func (c *Controller) Shutdown(table *session.Table) {
	sessions := table.Snapshot()
	for _, s := range sessions {
		s.Lock()
		s.Send(wire.Request(wire.VerbExit))
		s.Unlock()
	}
	if len(sessions) > 0 {
		time.Sleep(exitGrace)
	}
	for _, s := range sessions {
		s.Close()
		table.Remove(s)
		c.Log.Info("Connection closed due to exit command: " + s.IP)
	}
	if c.Store != nil {
		c.Store.RecordEvent("", "", store.EventShutdown, fmt.Sprintf("%d sessions closed", len(sessions)))
	}
}
