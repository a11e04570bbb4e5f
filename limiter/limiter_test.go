package limiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/contribgraph/limiter"
)

func TestTransport_forwards_requests(t *testing.T) {
	t.Parallel()

	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusNoContent)
		},
	))
	defer srv.Close()

	hc := &http.Client{
		Transport: limiter.NewTransport(
			nil, 100, 10,
		),
	}

	resp, err := hc.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(
		t, http.StatusNoContent, resp.StatusCode,
	)
	assert.Equal(t, 1, calls)
}

func TestTransport_canceled_context(t *testing.T) {
	t.Parallel()

	// Rate so low the second request must wait, and a
	// canceled context so the wait fails immediately.
	tr := limiter.NewTransport(nil, 0.001, 1)

	ctx, cancel := context.WithCancel(
		context.Background(),
	)
	cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		"http://127.0.0.1:0/", nil,
	)
	require.NoError(t, err)

	// First request consumes the burst.
	first, err := http.NewRequestWithContext(
		context.Background(), http.MethodGet,
		"http://127.0.0.1:0/", nil,
	)
	require.NoError(t, err)

	_, _ = tr.RoundTrip(first)

	_, err = tr.RoundTrip(req)

	assert.ErrorContains(
		t, err, "rate limited transport",
	)
}

func TestClient_sets_timeout(t *testing.T) {
	t.Parallel()

	hc := limiter.Client(10, 1, 5*time.Second)

	assert.Equal(t, 5*time.Second, hc.Timeout)
	assert.IsType(
		t, &limiter.Transport{}, hc.Transport,
	)
}
