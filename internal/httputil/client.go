// Package httputil builds the HTTP client used for upstream measurement APIs.
package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// UserAgent identifies the service to upstream APIs.
const UserAgent = "wettermonitor/1.0 (+https://github.com/lox/wettermonitor)"

type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header[k] = v
		}
	}
	return t.base.RoundTrip(req)
}

// NewClient returns a client with the default timeout that sends a JSON
// Accept header and the service user agent unless a request sets its own.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &headerTransport{
			base: http.DefaultTransport,
			headers: http.Header{
				"User-Agent": {UserAgent},
				"Accept":     {"application/json"},
			},
		},
	}
}
