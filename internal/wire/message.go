package wire

import "strings"

// Sentinel terminates every frame on the wire. Base64 payloads cannot
// contain '<', so scanning for the literal is safe for them. Textual
// bodies (file and process names) are sent unfiltered; one that contains
// the literal ends its frame early.
const Sentinel = "<EOM488965>"

// Request verbs (server -> agent).
const (
	VerbHello     = "hello"
	VerbExit      = "exit"
	VerbProcesses = "processes"
	VerbSysinfo   = "sysinfo"
	VerbDisk      = "disk"
	VerbListDir   = "listdir"
	VerbCheckFile = "checkfile"
	VerbRequest   = "request"
	VerbSendFile  = "sendfile"
)

// Reply verbs (agent -> server). VerbHello, VerbProcesses, VerbSysinfo and
// VerbCheckFile double as reply verbs.
const (
	VerbDiskInfo   = "diskinfo"
	VerbDirListing = "dirlisting"
	VerbSend       = "send"
)

// Message is a decoded frame: the leading verb token and everything after
// the first '|'. HasBody distinguishes "verb" from "verb|".
//
// Some reply bodies carry a single leading space after the separator
// (sysinfo, diskinfo, dirlisting). The body is kept verbatim so frames
// re-encode bit-exact; use Text to read the body with that space removed.
type Message struct {
	Verb    string
	Body    string
	HasBody bool
}

// Parse splits a frame into verb and body at the first '|'.
func Parse(frame []byte) Message {
	s := string(frame)
	if i := strings.IndexByte(s, '|'); i >= 0 {
		return Message{Verb: s[:i], Body: s[i+1:], HasBody: true}
	}
	return Message{Verb: s}
}

// Encode renders the message as frame payload bytes, without the sentinel.
func (m Message) Encode() []byte {
	if !m.HasBody {
		return []byte(m.Verb)
	}
	return []byte(m.Verb + "|" + m.Body)
}

// Text returns the body with the single leading pad space, if any, removed.
func (m Message) Text() string {
	return strings.TrimPrefix(m.Body, " ")
}

// Request builds a bodyless request message.
func Request(verb string) Message {
	return Message{Verb: verb}
}

// RequestWith builds a request message carrying a body.
func RequestWith(verb, body string) Message {
	return Message{Verb: verb, Body: body, HasBody: true}
}
