package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/tether/internal/allowlist"
	"github.com/ehrlich-b/tether/internal/session"
)

// testTLSConfig builds a throwaway ECDSA identity; the production
// RSA-4096 path is covered by the certs package tests.
func testTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	}
}

func startServer(t *testing.T, allowed string) (*Server, string, string) {
	t.Helper()
	allowPath := filepath.Join(t.TempDir(), "authorised_ips.txt")
	if err := os.WriteFile(allowPath, []byte(allowed), 0o644); err != nil {
		t.Fatalf("seed allowlist: %v", err)
	}
	allow, err := allowlist.Open(allowPath)
	if err != nil {
		t.Fatalf("open allowlist: %v", err)
	}
	t.Cleanup(func() { allow.Close() })

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &Server{
		Addr:    "127.0.0.1:0",
		TLS:     testTLSConfig(t),
		Allow:   allow,
		Table:   session.NewTable(),
		Log:     discard,
		AuthLog: discard,
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	go srv.AcceptLoop()
	return srv, srv.ln.Addr().String(), allowPath
}

func waitForLen(t *testing.T, table *session.Table, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for table.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("table len = %d, want %d", table.Len(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuthorisedClientAdmitted(t *testing.T) {
	srv, addr, _ := startServer(t, "127.0.0.1\n")

	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForLen(t, srv.Table, 1)
	s := srv.Table.Snapshot()[0]
	if s.IP != "127.0.0.1" {
		t.Errorf("session IP = %s", s.IP)
	}
	if s.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("session has no stable ID")
	}
}

func TestUnlistedClientRejected(t *testing.T) {
	srv, addr, _ := startServer(t, "10.0.0.5\n")

	// The server drops the raw connection before any handshake bytes
	// flow, so the client sees either a handshake error or EOF.
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err == nil {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, 1)
		if _, rerr := conn.Read(buf); rerr == nil {
			t.Error("read succeeded on a rejected connection")
		}
		conn.Close()
	}

	time.Sleep(100 * time.Millisecond)
	if srv.Table.Len() != 0 {
		t.Error("rejected client landed in the session table")
	}
}

func TestAllowListEditHonouredLive(t *testing.T) {
	srv, addr, allowPath := startServer(t, "10.0.0.5\n")

	// First attempt from 127.0.0.1 bounces.
	if conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true}); err == nil {
		conn.Close()
	}
	time.Sleep(50 * time.Millisecond)
	if srv.Table.Len() != 0 {
		t.Fatal("unlisted client admitted")
	}

	// Operator appends the address live; the next attempt must pass.
	if err := os.WriteFile(allowPath, []byte("10.0.0.5\n127.0.0.1\n"), 0o644); err != nil {
		t.Fatalf("rewrite allowlist: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
		if err == nil {
			defer conn.Close()
			waitForLen(t, srv.Table, 1)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("edited allow-list never honoured")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestAcceptLoopEndsOnClose(t *testing.T) {
	srv, _, _ := startServer(t, "")
	done := make(chan struct{})
	go func() {
		// A second loop on the same listener exits when it closes.
		srv.AcceptLoop()
		close(done)
	}()
	srv.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not terminate on close")
	}
}
