package wire

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		frame   string
		verb    string
		body    string
		hasBody bool
	}{
		{"hello", "hello", "", false},
		{"exit", "exit", "", false},
		{"checkfile|1", "checkfile", "1", true},
		{"listdir|/etc", "listdir", "/etc", true},
		{"sysinfo| Debian 12", "sysinfo", " Debian 12", true},
		{"sendfile|tool.sh|c2NyaXB0", "sendfile", "tool.sh|c2NyaXB0", true},
		{"send|", "send", "", true},
		{"", "", "", false},
	}
	for _, tt := range tests {
		m := Parse([]byte(tt.frame))
		if m.Verb != tt.verb || m.Body != tt.body || m.HasBody != tt.hasBody {
			t.Errorf("Parse(%q) = %+v", tt.frame, m)
		}
	}
}

func TestEncodeMirrorsParse(t *testing.T) {
	frames := []string{
		"hello",
		"diskinfo| Total disk: 20.00 GB",
		"dirlisting| bin\netc\nusr",
		"checkfile|0",
		"sendfile|a.bin|QUJD",
	}
	for _, f := range frames {
		if got := string(Parse([]byte(f)).Encode()); got != f {
			t.Errorf("round trip %q -> %q", f, got)
		}
	}
}

func TestTextStripsPadSpace(t *testing.T) {
	m := Parse([]byte("dirlisting| Directory not found"))
	if m.Text() != "Directory not found" {
		t.Errorf("got %q", m.Text())
	}
	// Only the single pad space goes; deeper indentation stays.
	m = Parse([]byte("sysinfo|  two spaces"))
	if m.Text() != " two spaces" {
		t.Errorf("got %q", m.Text())
	}
}
