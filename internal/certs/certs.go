// Package certs manages the server's self-signed TLS identity.
//
// The transport performs opportunistic encryption only: the server
// presents a self-signed certificate and agents accept it without
// verification. Peer identity is established by the source-address
// allow-list, not by PKI.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

const (
	rsaBits      = 4096
	validityDays = 365
	commonName   = "localhost"
)

// Ensure generates a self-signed certificate into certPath/keyPath if
// either file is missing. When both exist nothing is written; when only
// one exists, both files are regenerated and overwritten.
func Ensure(certPath, keyPath string) (created bool, err error) {
	if exists(certPath) && exists(keyPath) {
		return false, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return false, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return false, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, validityDays),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return false, fmt.Errorf("create certificate: %w", err)
	}

	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: mustMarshalKey(key)})

	if err := os.WriteFile(certPath, certOut, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", certPath, err)
	}
	if err := os.WriteFile(keyPath, keyOut, 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", keyPath, err)
	}
	return true, nil
}

func mustMarshalKey(key *rsa.PrivateKey) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		// rsa keys always marshal; reaching here means memory corruption.
		panic(err)
	}
	return der
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ServerConfig loads the key pair and returns the listener-side TLS
// configuration. Client certificates are not requested.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig returns the agent-side TLS configuration: encrypt, verify
// nothing.
func ClientConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
}
