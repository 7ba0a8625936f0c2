package controller

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ehrlich-b/tether/internal/files"
	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/wire"
)

// ErrNotOnAgent means the existence handshake reported the remote path
// absent or unreadable; phase B is never entered.
var ErrNotOnAgent = errors.New("controller: file not present on agent")

// ErrDenied means the agent refused to store an uploaded file.
var ErrDenied = errors.New("controller: agent denied the transfer")

// uploadAckWindow is how long Upload listens for a denial frame. Success
// is silent on the wire; an unread denial would desynchronise the next
// exchange, so it must be drained here.
const uploadAckWindow = 2 * exitGrace

// CheckFile runs the download existence handshake (phase A).
func (c *Controller) CheckFile(s *session.Session, path string) (bool, error) {
	reply, err := c.exchange(s, wire.RequestWith(wire.VerbCheckFile, path), wire.VerbCheckFile)
	if err != nil {
		return false, err
	}
	switch reply.Body {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, &ProtocolError{Want: wire.VerbCheckFile, Got: reply.Verb + "|" + reply.Body}
}

// Download fetches a remote file: phase A checks existence, phase B
// transfers the base64 payload. The artifact keeps the remote basename.
func (c *Controller) Download(s *session.Session, remotePath string) (string, error) {
	ok, err := c.CheckFile(s, remotePath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotOnAgent
	}

	reply, err := c.exchange(s, wire.RequestWith(wire.VerbRequest, remotePath), wire.VerbSend)
	if err != nil {
		return "", err
	}
	if reply.Body == "denied" {
		return "", ErrDenied
	}
	data, err := base64.StdEncoding.DecodeString(reply.Body)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}

	dest := c.Files.Path(files.DownloadedFiles, filepath.Base(remotePath))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write download: %w", err)
	}
	c.Log.Info(fmt.Sprintf("File %s downloaded from client %s to %s", remotePath, s.IP, dest))
	if c.Store != nil {
		c.Store.RecordArtifact(s.ID.String(), s.IP, wire.VerbRequest, dest, int64(len(data)))
	}
	return dest, nil
}

// Upload pushes a tool_box file to the agent, which stores it under its
// working directory. The protocol defines no success acknowledgement;
// only a denial frame can come back, and only on failure.
func (c *Controller) Upload(s *session.Session, name string) error {
	data, err := os.ReadFile(c.Files.Path(files.ToolBox, name))
	if err != nil {
		return fmt.Errorf("read tool_box file: %w", err)
	}
	payload := filepath.Base(name) + "|" + base64.StdEncoding.EncodeToString(data)
	if err := s.Send(wire.RequestWith(wire.VerbSendFile, payload)); err != nil {
		return err
	}
	c.recordCommand(s, wire.VerbSendFile)

	reply, err := s.RecvTimeout(uploadAckWindow)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Silence is success.
			c.Log.Info(fmt.Sprintf("File %s transferred to %s", name, s.IP))
			return nil
		}
		return err
	}
	if reply.Verb == wire.VerbSend && reply.Body == "denied" {
		return ErrDenied
	}
	return &ProtocolError{Want: wire.VerbSend, Got: reply.Verb}
}
