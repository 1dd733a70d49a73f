package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/cockroachdb/errors"
)

// BuildTLSConfig turns TLSOptions into a *tls.Config, grounded on the
// teacher's TLSConfig.BuildTLSConfig (same default-to-1.2-minimum and
// CA/client-cert loading behavior, narrowed to the options a Handle
// actually exposes).
func (t *TLSOptions) BuildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify, // #nosec G402 - explicit opt-in via Handle option
		MinVersion:         tls.VersionTLS12,
	}

	switch t.MinVersion {
	case "", "1.2":
	case "1.3":
		cfg.MinVersion = tls.VersionTLS13
	default:
		return nil, errors.New("invalid tls min_version: must be 1.2 or 1.3")
	}

	if t.CACertFile != "" {
		caCert, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading CA certificate file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}

	switch {
	case t.ClientCertFile != "" && t.ClientKeyFile != "":
		cert, err := tls.LoadX509KeyPair(t.ClientCertFile, t.ClientKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	case t.ClientCertFile != "" || t.ClientKeyFile != "":
		return nil, errors.New("both client_cert_file and client_key_file must be set for mutual TLS")
	}

	return cfg, nil
}
