// Package limiter bounds the request rate of outbound
// HTTP clients so instance fetches stay inside remote
// API quotas.
package limiter

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Transport wraps a RoundTripper and blocks each request
// until the rate limiter admits it.
type Transport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// NewTransport creates a rate limited transport. maxRate
// is the sustained number of requests per second, burst
// the momentary excess allowed. A nil next falls back to
// http.DefaultTransport.
func NewTransport(
	next http.RoundTripper,
	maxRate float64,
	burst int,
) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}

	if burst < 1 {
		burst = 1
	}

	return &Transport{
		next: next,
		limiter: rate.NewLimiter(
			rate.Limit(maxRate), burst,
		),
	}
}

// RoundTrip waits for the limiter, then forwards the
// request. A canceled request context aborts the wait.
func (t *Transport) RoundTrip(
	req *http.Request,
) (*http.Response, error) {
	const errCtx = "rate limited transport"

	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return t.next.RoundTrip(req)
}

// Client returns an http.Client with a rate limited
// transport and a bounded per-request timeout.
func Client(
	maxRate float64,
	burst int,
	timeout time.Duration,
) *http.Client {
	return &http.Client{
		Transport: NewTransport(nil, maxRate, burst),
		Timeout:   timeout,
	}
}
