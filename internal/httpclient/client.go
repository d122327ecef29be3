// Package httpclient builds the per-call HTTP clients used to reach Jenkins.
package httpclient

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// TrustPolicy selects how server certificates are verified
type TrustPolicy int

const (
	// PlatformRoots verifies certificates against the system trust store
	PlatformRoots TrustPolicy = iota
	// InsecureTrustAllCertificates accepts any certificate chain and any host name.
	// Only used when an administrator sets ignoreCerts for a repository.
	InsecureTrustAllCertificates
)

func (p TrustPolicy) String() string {
	if p == InsecureTrustAllCertificates {
		return "insecure-trust-all"
	}
	return "platform-roots"
}

// DefaultTimeout bounds a whole request when no timeout is configured
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by Do after Close
var ErrClosed = errors.New("http client closed")

// Client performs requests and must be closed once the caller is done with it.
// Close releases the underlying transport and is safe to call more than once.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
	Close() error
}

// Factory produces a Client configured for a TLS trust policy
type Factory interface {
	GetHTTPClient(usingSSL, trustAllCerts bool) (Client, error)
}

// Options configures a DefaultFactory
type Options struct {
	Timeout  time.Duration
	KeyStore *KeyStore
}

// DefaultFactory builds a fresh transport for every client. It implements Factory.
type DefaultFactory struct {
	timeout  time.Duration
	keyStore *KeyStore
}

// NewFactory creates a DefaultFactory
func NewFactory(opts Options) *DefaultFactory {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultFactory{timeout: timeout, keyStore: opts.KeyStore}
}

// GetHTTPClient returns a plain client when usingSSL is false, a client verifying
// against platform roots when trustAllCerts is false, and otherwise a client using
// InsecureTrustAllCertificates. The client key store is only presented in that last mode.
func (f *DefaultFactory) GetHTTPClient(usingSSL, trustAllCerts bool) (Client, error) {
	transport := newTransport()

	if usingSSL {
		policy := PlatformRoots
		if trustAllCerts {
			policy = InsecureTrustAllCertificates
		}
		transport.TLSClientConfig = f.tlsConfig(policy)
	}

	return &client{
		http:      &http.Client{Transport: transport, Timeout: f.timeout},
		transport: transport,
	}, nil
}

func (f *DefaultFactory) tlsConfig(policy TrustPolicy) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if policy != InsecureTrustAllCertificates {
		return cfg
	}

	cfg.InsecureSkipVerify = true
	if f.keyStore.Available() {
		cfg.Certificates = f.keyStore.Certificates()
	}
	return cfg
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          1,
		DisableKeepAlives:     true,
	}
}

type client struct {
	http      *http.Client
	transport *http.Transport

	mu     sync.Mutex
	closed bool
}

func (c *client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return c.http.Do(req)
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

// TLSConfig exposes the TLS configuration of a client built by DefaultFactory, nil otherwise
func TLSConfig(c Client) *tls.Config {
	if cl, ok := c.(*client); ok {
		return cl.transport.TLSClientConfig
	}
	return nil
}
