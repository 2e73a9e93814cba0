package forwarder

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
	defaultConnTimeout         = 10 * time.Second
)

// newPooledTransport builds an http.Transport tuned for many small POSTs
// to a handful of distinct endpoint hosts: keep-alive connections are
// reused aggressively rather than opened per request.
func newPooledTransport(connTimeout time.Duration) *http.Transport {
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// newHTTPClient builds the shared *http.Client every forward attempt
// uses, with timeout drawn from configuration.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newPooledTransport(timeout),
		Timeout:   timeout,
	}
}
