// Package httpclient manages pooled HTTP clients keyed by configuration.
package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"claude-relay/internal/utils"

	"github.com/sirupsen/logrus"
)

// Config defines the parameters for creating an HTTP client.
// This struct is used to generate a unique fingerprint for client reuse.
type Config struct {
	ConnectTimeout        time.Duration
	RequestTimeout        time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	ResponseHeaderTimeout time.Duration
	DisableCompression    bool
	ForceAttemptHTTP2     bool
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	ProxyURL              string
}

// HTTPClientManager creates and caches clients based on their configuration
// fingerprint, ensuring that clients with the same configuration are reused.
type HTTPClientManager struct {
	clients map[string]*http.Client
	lock    sync.RWMutex
}

// NewHTTPClientManager creates a new client manager.
func NewHTTPClientManager() *HTTPClientManager {
	return &HTTPClientManager{
		clients: make(map[string]*http.Client),
	}
}

// GetClient returns an HTTP client that matches the given configuration,
// creating and caching one if needed.
func (m *HTTPClientManager) GetClient(config *Config) *http.Client {
	fingerprint := config.getFingerprint()

	m.lock.RLock()
	client, exists := m.clients[fingerprint]
	m.lock.RUnlock()
	if exists {
		return client
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	// Another goroutine may have created the client while we waited
	if client, exists = m.clients[fingerprint]; exists {
		return client
	}

	// Allow bursts beyond the idle pool, with a small floor
	maxConnsPerHost := config.MaxIdleConnsPerHost * 2
	if maxConnsPerHost < 10 {
		maxConnsPerHost = 10
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     config.ForceAttemptHTTP2,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		DisableCompression:    config.DisableCompression,
	}

	transport.Proxy = resolveProxy(config.ProxyURL)

	newClient := &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
	}

	m.clients[fingerprint] = newClient

	logrus.WithFields(logrus.Fields{
		"fingerprint": fingerprint,
		"timeout":     config.RequestTimeout,
	}).Debug("Created new HTTP client")

	return newClient
}

// resolveProxy returns the proxy function for a configured proxy URL,
// falling back to environment settings when the URL is empty or invalid.
func resolveProxy(proxyURL string) func(*http.Request) (*url.URL, error) {
	trimmed := strings.TrimSpace(proxyURL)
	if trimmed == "" {
		return http.ProxyFromEnvironment
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		logrus.Warnf("Invalid proxy URL '%s', falling back to environment settings: %v", utils.SanitizeProxyString(trimmed), err)
		return http.ProxyFromEnvironment
	}
	switch parsed.Scheme {
	case "http", "https", "socks5":
	default:
		logrus.Warnf("Unsupported proxy scheme '%s', falling back to environment settings", parsed.Scheme)
		return http.ProxyFromEnvironment
	}

	logrus.Debugf("HTTP client configured with proxy: %s", utils.SanitizeProxyURLForLog(parsed))
	return http.ProxyURL(parsed)
}

// CloseIdleConnections closes idle connections for all managed clients.
func (m *HTTPClientManager) CloseIdleConnections() {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, client := range m.clients {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
}

// getFingerprint generates a unique string representation of the client
// configuration.
func (c *Config) getFingerprint() string {
	return fmt.Sprintf(
		"ct:%.0fs|rt:%.0fs|it:%.0fs|mic:%d|mich:%d|rht:%.0fs|dc:%t|fh2:%t|tlst:%.0fs|ect:%.0fs|proxy:%s",
		c.ConnectTimeout.Seconds(),
		c.RequestTimeout.Seconds(),
		c.IdleConnTimeout.Seconds(),
		c.MaxIdleConns,
		c.MaxIdleConnsPerHost,
		c.ResponseHeaderTimeout.Seconds(),
		c.DisableCompression,
		c.ForceAttemptHTTP2,
		c.TLSHandshakeTimeout.Seconds(),
		c.ExpectContinueTimeout.Seconds(),
		strings.TrimSpace(c.ProxyURL),
	)
}
