// Package httpclient provides a tuned HTTP client for the Bot API.
package httpclient

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// NewMediaClient creates an HTTP client sized for multipart media uploads.
// The overall timeout is generous because a 50MB attachment can take
// minutes on a slow uplink, while connection setup stays tight.
func NewMediaClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Limit redirects to prevent redirect-based attacks
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}
