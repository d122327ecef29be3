package httpclient

import (
	"crypto/tls"
	"fmt"
)

// KeyStore holds the client certificate presented to Jenkins. It is configured
// out of band by the operator, never per repository.
type KeyStore struct {
	certs []tls.Certificate
}

// LoadKeyStore reads a PEM encoded certificate and private key.
// Both paths empty yields an empty, unavailable key store.
func LoadKeyStore(certFile, keyFile string) (*KeyStore, error) {
	if certFile == "" && keyFile == "" {
		return &KeyStore{}, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("unable to build keystore: both certificate and key files are required")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to build keystore: %w", err)
	}
	return &KeyStore{certs: []tls.Certificate{cert}}, nil
}

// Available reports whether a client certificate was loaded
func (k *KeyStore) Available() bool {
	return k != nil && len(k.certs) > 0
}

// Certificates returns the loaded client certificates
func (k *KeyStore) Certificates() []tls.Certificate {
	if k == nil {
		return nil
	}
	return k.certs
}
