// Package httputil builds the shared HTTP transport used by every adapter.
package httputil

import (
	"net"
	"net/http"
	"time"
)

type ClientConfig struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
}

func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:               120 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}
}

func newTransport(cfg ClientConfig) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
}

func NewClient(cfg ClientConfig) *http.Client {
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newTransport(cfg),
	}
}

// NewStreamingClient ignores cfg.Timeout: a whole-exchange deadline would cut
// long streams short. Single-shot calls get their deadline from the request
// context and streams from the idle watchdog; connect, TLS and header
// timeouts still apply.
func NewStreamingClient(cfg ClientConfig) *http.Client {
	return &http.Client{
		Transport: newTransport(cfg),
	}
}

func DefaultClient() *http.Client {
	return NewClient(DefaultConfig())
}
