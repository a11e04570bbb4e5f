package server_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/server"
)

func TestNewInstanceUsers_requires_url(t *testing.T) {
	t.Parallel()

	_, err := server.NewInstanceUsers("", "")

	assert.ErrorContains(t, err, "url must be set")
}

func TestInstanceUsers_gitlab(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/v4/user",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t, "Bearer itok",
				r.Header.Get("Authorization"),
			)
			w.Header().Set(
				"Content-Type", "application/json",
			)
			fmt.Fprint(w, `{
				"id": 7,
				"username": "jdoe",
				"name": "Jane Doe",
				"email": "jdoe@example.com"
			}`)
		},
	)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	source, err := server.NewInstanceUsers(srv.URL, "")
	require.NoError(t, err)

	user, err := source.UserForToken(
		context.Background(), "itok",
	)

	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
	assert.Equal(t, int64(7), user.ID)
}

func TestInstanceUsers_github(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/v3/user",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t, "Bearer gtok",
				r.Header.Get("Authorization"),
			)
			w.Header().Set(
				"Content-Type", "application/json",
			)
			fmt.Fprint(w, `{
				"id": 9,
				"login": "octo",
				"name": "Octo Cat"
			}`)
		},
	)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	source, err := server.NewInstanceUsers(
		srv.URL, instance.FamilyGitHub,
	)
	require.NoError(t, err)

	user, err := source.UserForToken(
		context.Background(), "gtok",
	)

	require.NoError(t, err)
	assert.Equal(t, "octo", user.Username)
}

func TestInstanceUsers_rejected_token(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/v4/user",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	source, err := server.NewInstanceUsers(srv.URL, "")
	require.NoError(t, err)

	_, err = source.UserForToken(
		context.Background(), "expired",
	)

	assert.ErrorIs(t, err, instance.ErrAuthentication)
}

// countingUsers counts delegated lookups.
type countingUsers struct {
	calls int
	user  *instance.User
	err   error
}

func (c *countingUsers) UserForToken(
	_ context.Context,
	_ string,
) (*instance.User, error) {
	c.calls++

	if c.err != nil {
		return nil, c.err
	}

	return c.user, nil
}

func TestNewCachedUsers_validation(t *testing.T) {
	t.Parallel()

	_, err := server.NewCachedUsers(
		nil, 10, time.Minute,
	)
	assert.ErrorContains(t, err, "source must be set")

	_, err = server.NewCachedUsers(
		&countingUsers{}, 0, time.Minute,
	)
	assert.ErrorContains(t, err, "cache size")
}

func TestCachedUsers_serves_from_cache(t *testing.T) {
	t.Parallel()

	source := &countingUsers{
		user: &instance.User{ID: 7, Username: "jdoe"},
	}

	cached, err := server.NewCachedUsers(
		source, 10, time.Hour,
	)
	require.NoError(t, err)

	first, err := cached.UserForToken(
		context.Background(), "tok",
	)
	require.NoError(t, err)

	second, err := cached.UserForToken(
		context.Background(), "tok",
	)
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Same(t, first, second)
}

func TestCachedUsers_entry_expires(t *testing.T) {
	t.Parallel()

	source := &countingUsers{
		user: &instance.User{ID: 7},
	}

	cached, err := server.NewCachedUsers(
		source, 10, time.Nanosecond,
	)
	require.NoError(t, err)

	_, err = cached.UserForToken(
		context.Background(), "tok",
	)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = cached.UserForToken(
		context.Background(), "tok",
	)
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
}

func TestCachedUsers_never_caches_failures(t *testing.T) {
	t.Parallel()

	source := &countingUsers{
		err: errors.New("boom"),
	}

	cached, err := server.NewCachedUsers(
		source, 10, time.Hour,
	)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := cached.UserForToken(
			context.Background(), "tok",
		)
		require.Error(t, err)
	}

	assert.Equal(t, 2, source.calls)
}
