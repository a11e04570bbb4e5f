package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/contribgraph/server"
)

func postSignup(
	tb testing.TB,
	router http.Handler,
	body string,
) *httptest.ResponseRecorder {
	tb.Helper()

	req := httptest.NewRequest(
		http.MethodPost, "/signup",
		strings.NewReader(body),
	)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func postToken(
	tb testing.TB,
	router http.Handler,
	form string,
) *httptest.ResponseRecorder {
	tb.Helper()

	req := httptest.NewRequest(
		http.MethodPost, "/token",
		strings.NewReader(form),
	)
	req.Header.Set(
		"Content-Type",
		"application/x-www-form-urlencoded",
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func getMe(
	tb testing.TB,
	router http.Handler,
	token string,
) *httptest.ResponseRecorder {
	tb.Helper()

	req := httptest.NewRequest(
		http.MethodGet, "/users/me", nil,
	)

	if token != "" {
		req.Header.Set(
			"Authorization", "Bearer "+token,
		)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func issuedToken(
	tb testing.TB,
	rec *httptest.ResponseRecorder,
) string {
	tb.Helper()

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(tb, json.Unmarshal(
		rec.Body.Bytes(), &resp,
	))

	assert.Equal(tb, "bearer", resp.TokenType)
	require.NotEmpty(tb, resp.AccessToken)

	return resp.AccessToken
}

func TestSignup_issues_session(t *testing.T) {
	t.Parallel()

	router := newTestServer(
		t, server.Config{},
	).Router()

	rec := postSignup(
		t, router,
		`{"username": "jane", "password": "secret"}`,
	)

	require.Equal(t, http.StatusCreated, rec.Code)

	token := issuedToken(t, rec)

	me := getMe(t, router, token)
	require.Equal(t, http.StatusOK, me.Code)

	var account struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(
		me.Body.Bytes(), &account,
	))

	assert.Equal(t, "jane", account.Username)
	assert.NotEmpty(t, account.ID)
}

func TestSignup_duplicate_username(t *testing.T) {
	t.Parallel()

	router := newTestServer(
		t, server.Config{},
	).Router()

	body := `{"username": "jane", "password": "secret"}`

	require.Equal(
		t, http.StatusCreated,
		postSignup(t, router, body).Code,
	)
	assert.Equal(
		t, http.StatusConflict,
		postSignup(t, router, body).Code,
	)
}

func TestSignup_rejects_bad_bodies(t *testing.T) {
	t.Parallel()

	router := newTestServer(
		t, server.Config{},
	).Router()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{nope"},
		{
			name: "missing password",
			body: `{"username": "jane"}`,
		},
		{
			name: "missing username",
			body: `{"password": "secret"}`,
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := postSignup(t, router, tc.body)

			assert.Equal(
				t, http.StatusBadRequest, rec.Code,
			)
		})
	}
}

func TestToken_password_grant(t *testing.T) {
	t.Parallel()

	router := newTestServer(
		t, server.Config{},
	).Router()

	require.Equal(
		t, http.StatusCreated,
		postSignup(
			t, router,
			`{"username": "jane", "password": "secret"}`,
		).Code,
	)

	rec := postToken(
		t, router,
		"grant_type=password&username=jane&password=secret",
	)

	require.Equal(t, http.StatusOK, rec.Code)

	token := issuedToken(t, rec)

	assert.Equal(
		t, http.StatusOK,
		getMe(t, router, token).Code,
	)
}

func TestToken_rejects_bad_credentials(t *testing.T) {
	t.Parallel()

	router := newTestServer(
		t, server.Config{},
	).Router()

	require.Equal(
		t, http.StatusCreated,
		postSignup(
			t, router,
			`{"username": "jane", "password": "secret"}`,
		).Code,
	)

	tests := []struct {
		name string
		form string
	}{
		{
			name: "wrong password",
			form: "username=jane&password=wrong",
		},
		{
			name: "unknown user",
			form: "username=ghost&password=secret",
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := postToken(t, router, tc.form)

			assert.Equal(
				t, http.StatusUnauthorized, rec.Code,
			)
			assert.Equal(
				t, "Bearer",
				rec.Header().Get("WWW-Authenticate"),
			)
		})
	}
}

func TestUsersMe_rejects_missing_or_unknown(t *testing.T) {
	t.Parallel()

	router := newTestServer(
		t, server.Config{},
	).Router()

	assert.Equal(
		t, http.StatusUnauthorized,
		getMe(t, router, "").Code,
	)
	assert.Equal(
		t, http.StatusUnauthorized,
		getMe(t, router, "bogus").Code,
	)
}

func TestSession_expires(t *testing.T) {
	t.Parallel()

	router := newTestServer(t, server.Config{
		SessionTTL: time.Nanosecond,
	}).Router()

	rec := postSignup(
		t, router,
		`{"username": "jane", "password": "secret"}`,
	)
	require.Equal(t, http.StatusCreated, rec.Code)

	token := issuedToken(t, rec)

	time.Sleep(10 * time.Millisecond)

	assert.Equal(
		t, http.StatusUnauthorized,
		getMe(t, router, token).Code,
	)
}
