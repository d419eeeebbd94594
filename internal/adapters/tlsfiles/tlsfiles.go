// Package tlsfiles builds TLS configurations from PEM files on disk.
package tlsfiles

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Files names the PEM files of a TLS setup. All empty means plain TCP.
type Files struct {
	CA   string
	Cert string
	Key  string
}

// Enabled reports whether any file is set.
func (f Files) Enabled() bool {
	return f.CA != "" || f.Cert != "" || f.Key != ""
}

// Client returns a client configuration trusting CA and presenting the
// optional certificate. It returns nil when nothing is configured.
func (f Files) Client() (*tls.Config, error) {
	if !f.Enabled() {
		return nil, nil
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12}
	pool, err := f.pool()
	if err != nil {
		return nil, err
	}
	config.RootCAs = pool
	if err := f.loadCert(config, false); err != nil {
		return nil, err
	}
	return config, nil
}

// Server returns a listener configuration. A CA, when set, is required of
// connecting clients.
func (f Files) Server() (*tls.Config, error) {
	if !f.Enabled() {
		return nil, nil
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if err := f.loadCert(config, true); err != nil {
		return nil, err
	}
	pool, err := f.pool()
	if err != nil {
		return nil, err
	}
	if pool != nil {
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return config, nil
}

func (f Files) pool() (*x509.CertPool, error) {
	if f.CA == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(f.CA)
	if err != nil {
		return nil, fmt.Errorf("read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("failed to parse CA bundle")
	}
	return pool, nil
}

func (f Files) loadCert(config *tls.Config, required bool) error {
	if f.Cert == "" && f.Key == "" {
		if required {
			return errors.New("tls cert and key are required")
		}
		return nil
	}
	if f.Cert == "" || f.Key == "" {
		return errors.New("both tls cert and key are required")
	}
	cert, err := tls.LoadX509KeyPair(f.Cert, f.Key)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	config.Certificates = []tls.Certificate{cert}
	return nil
}
