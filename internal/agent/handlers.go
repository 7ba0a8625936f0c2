package agent

import (
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ehrlich-b/tether/internal/wire"
)

// handlers is the verb dispatch table. Each handler returns the single
// reply frame to send, or nil for verbs that answer with silence.
var handlers = map[string]func(*Agent, wire.Message) (*wire.Message, error){
	wire.VerbHello:     handleHello,
	wire.VerbExit:      handleExit,
	wire.VerbProcesses: handleProcesses,
	wire.VerbSysinfo:   handleSysinfo,
	wire.VerbDisk:      handleDisk,
	wire.VerbListDir:   handleListDir,
	wire.VerbCheckFile: handleCheckFile,
	wire.VerbRequest:   handleRequest,
	wire.VerbSendFile:  handleSendFile,
}

func reply(verb, body string) (*wire.Message, error) {
	return &wire.Message{Verb: verb, Body: body, HasBody: true}, nil
}

func handleHello(*Agent, wire.Message) (*wire.Message, error) {
	return &wire.Message{Verb: wire.VerbHello}, nil
}

func handleExit(*Agent, wire.Message) (*wire.Message, error) {
	return nil, errShutdown
}

func handleProcesses(*Agent, wire.Message) (*wire.Message, error) {
	list, err := processList()
	if err != nil {
		return nil, err
	}
	return reply(wire.VerbProcesses, list)
}

func handleSysinfo(*Agent, wire.Message) (*wire.Message, error) {
	return reply(wire.VerbSysinfo, " "+sysinfoReport())
}

func handleDisk(*Agent, wire.Message) (*wire.Message, error) {
	usage, err := diskReport()
	if err != nil {
		return nil, err
	}
	return reply(wire.VerbDiskInfo, " "+usage)
}

func handleListDir(_ *Agent, m wire.Message) (*wire.Message, error) {
	entries, err := os.ReadDir(m.Body)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return reply(wire.VerbDirListing, " Directory not found")
		case errors.Is(err, fs.ErrPermission):
			return reply(wire.VerbDirListing, " Permission denied")
		case errors.Is(err, syscall.ENOTDIR):
			return reply(wire.VerbDirListing, " Not a directory")
		default:
			return reply(wire.VerbDirListing, " Directory not found")
		}
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return reply(wire.VerbDirListing, " "+strings.Join(names, "\n"))
}

func handleCheckFile(_ *Agent, m wire.Message) (*wire.Message, error) {
	if readableFile(m.Body) {
		return reply(wire.VerbCheckFile, "1")
	}
	return reply(wire.VerbCheckFile, "0")
}

func readableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func handleRequest(_ *Agent, m wire.Message) (*wire.Message, error) {
	data, err := os.ReadFile(m.Body)
	if err != nil {
		return reply(wire.VerbSend, "denied")
	}
	return reply(wire.VerbSend, base64.StdEncoding.EncodeToString(data))
}

// handleSendFile stores an uploaded file under the agent's working
// directory. Success is silent; only failure produces a frame.
func handleSendFile(_ *Agent, m wire.Message) (*wire.Message, error) {
	name, payload, ok := strings.Cut(m.Body, "|")
	if !ok {
		return reply(wire.VerbSend, "denied")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return reply(wire.VerbSend, "denied")
	}
	// The server sends a bare basename; anything with path elements in
	// it is not taking directions from this side of the connection.
	if err := os.WriteFile(filepath.Base(name), data, 0o644); err != nil {
		return reply(wire.VerbSend, "denied")
	}
	return nil, nil
}
