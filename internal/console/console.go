// Package console is the operator's shell: a main menu over the session
// table and a per-session command menu that holds the session's
// exclusive lock for as long as the operator is driving it.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/ehrlich-b/tether/internal/controller"
	"github.com/ehrlich-b/tether/internal/files"
	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/store"
	"github.com/ehrlich-b/tether/internal/wire"
)

var (
	good   = color.New(color.BgGreen, color.FgBlack)
	bad    = color.New(color.BgRed, color.FgWhite)
	notice = color.New(color.BgYellow, color.FgBlack)
)

var mainMenu = []struct{ cmd, desc string }{
	{"help", "Display all commands"},
	{"r", "Refresh statistics"},
	{"list", "List connected clients"},
	{"set", "Interact with client (set ID) i.e. set 1"},
	{"good", "Regenerate known good hashes file"},
	{"exit", "Shutdown server and send close signal to clients"},
}

var clientMenu = []struct{ cmd, desc string }{
	{"help", "Display all commands"},
	{"r", "Refresh statistics"},
	{"kill", "Kill this client connection"},
	{"put", "Send a file to the client"},
	{"get", "Download a file from the client"},
	{"processes", "List processes running on the client"},
	{"sysinfo", "Display client OS version, CPU and memory information"},
	{"disk", "Display client disk usage"},
	{"listdir", "List directory on client"},
	{"exit", "Return to main menu"},
}

type Console struct {
	In    io.Reader
	Out   io.Writer
	Table *session.Table
	Ctrl  *controller.Controller
	Files *files.Manager
	Store *store.Store

	// HashSources are the directories covered by the 'good' command.
	HashSources []string

	// OnShutdown stops the accept loop once every session is closed.
	OnShutdown func()

	scanner *bufio.Scanner
	listing session.Listing
}

// Run drives the main menu until the operator exits or stdin closes.
func (c *Console) Run() {
	c.scanner = bufio.NewScanner(c.In)
	for {
		c.printStatistics()
		line, ok := c.prompt("\nCommand: ")
		if !ok {
			return
		}
		switch {
		case line == "help":
			c.printMenu(mainMenu)
		case line == "r":
			// Statistics reprint on the next loop pass.
		case line == "list":
			c.printListing()
		case line == "good":
			c.regenerateHashes()
		case line == "exit":
			c.Ctrl.Shutdown(c.Table)
			if c.OnShutdown != nil {
				c.OnShutdown()
			}
			return
		case strings.HasPrefix(line, "set"):
			c.setSession(line)
		case line == "":
		default:
			bad.Fprintln(c.Out, "Command not recognised, type 'help' for command listing")
		}
	}
}

func (c *Console) prompt(p string) (string, bool) {
	fmt.Fprint(c.Out, p)
	if !c.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.scanner.Text()), true
}

func (c *Console) printMenu(menu []struct{ cmd, desc string }) {
	for _, item := range menu {
		good.Fprintf(c.Out, "%s - %s\n", item.cmd, item.desc)
	}
}

func (c *Console) printStatistics() {
	fmt.Fprintln(c.Out, "\n*** SERVER INFO AND LOGS ***")
	fmt.Fprintf(c.Out, "Number of connected clients: %d\n", c.Table.Len())
	if c.Store != nil {
		authorised, _ := c.Store.CountEvents(store.EventAuthorised)
		rejected, _ := c.Store.CountEvents(store.EventRejected)
		evicted, _ := c.Store.CountEvents(store.EventEvicted)
		fmt.Fprintf(c.Out, "Lifetime authorised/rejected/evicted: %d/%d/%d\n", authorised, rejected, evicted)
	}
	fmt.Fprintf(c.Out, "\nLast 5 logged auth attempts:\n%s\n", c.lastAuthLines())
	fmt.Fprintln(c.Out, strings.Repeat("*", 28))
}

// lastAuthLines compresses auth.log tail lines to "time - message".
func (c *Console) lastAuthLines() string {
	lines, err := c.Files.TailAuthLog(5)
	if err != nil || len(lines) == 0 {
		return "None"
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, " - ", 3)
		if len(parts) == 3 {
			out = append(out, parts[0]+" - "+parts[2])
		} else {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// printListing displays the table and pins the positional snapshot that
// later 'set N' commands resolve against.
func (c *Console) printListing() {
	c.listing = c.Table.Listing()
	if len(c.listing) == 0 {
		bad.Fprintln(c.Out, "No connected clients")
		return
	}
	good.Fprintln(c.Out, "ID - Client")
	for i, s := range c.listing {
		good.Fprintf(c.Out, "%d  - %s\n", i, s.Addr())
	}
}

func (c *Console) setSession(line string) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		bad.Fprintln(c.Out, "Usage: set ID")
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		bad.Fprintln(c.Out, "Client ID does not exist, please enter ID from 'list'")
		return
	}
	if c.listing == nil {
		c.listing = c.Table.Listing()
	}
	s, ok := c.listing.Resolve(c.Table, n)
	if !ok {
		bad.Fprintln(c.Out, "Client ID does not exist, please enter ID from 'list'")
		return
	}
	c.controlClient(s)
}

// controlClient runs the per-session menu. The session lock is held for
// the whole sub-loop so the prober cannot interleave.
func (c *Console) controlClient(s *session.Session) {
	s.Lock()
	defer s.Unlock()
	good.Fprintln(c.Out, "Connected to client "+s.IP)

	for {
		c.printStatistics()
		line, ok := c.prompt("\nClient " + s.IP + ": ")
		if !ok {
			return
		}
		switch line {
		case "help":
			c.printMenu(clientMenu)
		case "r":
		case "exit":
			return
		case "kill":
			c.Ctrl.Kill(s, c.Table)
			return
		case "processes":
			path, err := c.Ctrl.Processes(s)
			if c.commandFailed(s, err) {
				return
			}
			if err == nil {
				good.Fprintln(c.Out, "Process dump saved to "+path)
			}
		case "sysinfo":
			body, path, err := c.Ctrl.Sysinfo(s)
			if c.commandFailed(s, err) {
				return
			}
			if err == nil {
				good.Fprintln(c.Out, "Sysinfo dump saved to "+path)
				fmt.Fprintln(c.Out, "\n"+body)
			}
		case "disk":
			body, path, err := c.Ctrl.Disk(s)
			if c.commandFailed(s, err) {
				return
			}
			if err == nil {
				good.Fprintln(c.Out, "Disk information dump saved to "+path)
				fmt.Fprintln(c.Out, "\n"+body)
			}
		case "listdir":
			if c.listDirLoop(s) {
				return
			}
		case "get":
			if c.downloadLoop(s) {
				return
			}
		case "put":
			if c.uploadPrompt(s) {
				return
			}
		case "":
		default:
			bad.Fprintln(c.Out, "Command not recognised, type 'help' for command listing")
		}
	}
}

// commandFailed reports fatal session errors. Protocol mismatches are
// displayed and survived; a dead peer ends the sub-loop.
func (c *Console) commandFailed(s *session.Session, err error) (disconnected bool) {
	if err == nil {
		return false
	}
	var perr *controller.ProtocolError
	if errors.As(err, &perr) {
		bad.Fprintln(c.Out, "Nothing received, please try again")
		return false
	}
	if errors.Is(err, wire.ErrPeerClosed) || errors.Is(err, wire.ErrFrameTooLarge) {
		bad.Fprintln(c.Out, "Client disconnected")
		s.Close()
		if c.Table.Remove(s) && c.Store != nil {
			c.Store.RecordEvent(s.ID.String(), s.IP, store.EventEvicted, "peer closed")
		}
		return true
	}
	bad.Fprintln(c.Out, "Error: "+err.Error())
	return false
}

func (c *Console) listDirLoop(s *session.Session) (disconnected bool) {
	for {
		dir, ok := c.prompt("Enter directory to list or 'exit': ")
		if !ok || dir == "exit" {
			return false
		}
		listing, err := c.Ctrl.ListDir(s, dir)
		if c.commandFailed(s, err) {
			return true
		}
		if err == nil {
			fmt.Fprintln(c.Out, listing)
		}
	}
}

func (c *Console) downloadLoop(s *session.Session) (disconnected bool) {
	for {
		path, ok := c.prompt("Enter file and path to download: ")
		if !ok || path == "exit" {
			return false
		}
		notice.Fprintln(c.Out, "Requesting "+path+" from client")
		dest, err := c.Ctrl.Download(s, path)
		if errors.Is(err, controller.ErrNotOnAgent) {
			bad.Fprintln(c.Out, "Permission denied or file does not exist on client, please try again or 'exit'")
			continue
		}
		if c.commandFailed(s, err) {
			return true
		}
		if err == nil {
			good.Fprintln(c.Out, "File received and saved "+dest)
		}
	}
}

func (c *Console) uploadPrompt(s *session.Session) (disconnected bool) {
	names, err := c.Files.ToolBoxFiles()
	if err != nil {
		bad.Fprintln(c.Out, "Error: "+err.Error())
		return false
	}
	if len(names) == 0 {
		bad.Fprintln(c.Out, "No files available, please put files in 'tool_box' folder")
		return false
	}
	fmt.Fprintln(c.Out, "ID   Filename")
	for i, name := range names {
		fmt.Fprintf(c.Out, "%d    %s\n", i, name)
	}
	line, ok := c.prompt("\nEnter file ID to send: ")
	if !ok {
		return false
	}
	id, err := strconv.Atoi(line)
	if err != nil || id < 0 || id >= len(names) {
		bad.Fprintln(c.Out, "File ID does not exist")
		return false
	}
	if err := c.Ctrl.Upload(s, names[id]); err != nil {
		if c.commandFailed(s, err) {
			return true
		}
		return false
	}
	good.Fprintln(c.Out, "File sent successfully")
	return false
}

func (c *Console) regenerateHashes() {
	n, err := c.Files.GenerateHashManifest(c.HashSources)
	if err != nil {
		bad.Fprintln(c.Out, "Error: "+err.Error())
		return
	}
	good.Fprintf(c.Out, "Known good hashes regenerated (%d files)\n", n)
}
