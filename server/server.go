// Package server exposes the thin HTTP service consumed
// by the browser UI: instance OAuth login, profile and
// contribution queries, and local account session
// issuance. The aggregation engine stays behind the
// ContributionSource and UserSource seams.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

// Config holds all settings for the HTTP service. Use a
// Config struct instead of many arguments.
type Config struct {
	// Addr is the listen address.
	Addr string

	// FrontendURL is the browser UI origin: the only CORS
	// origin allowed, and the post-login redirect target.
	FrontendURL string

	// InstanceURL is the primary instance base URL used
	// for the OAuth login flow.
	InstanceURL string

	// OAuthClientID and OAuthClientSecret identify this
	// service's OAuth application on the primary instance.
	OAuthClientID     string
	OAuthClientSecret string

	// OAuthRedirectURL is the registered callback URL,
	// normally <service>/login/callback.
	OAuthRedirectURL string

	// Users resolves instance access tokens to users.
	Users UserSource

	// Contributions yields the merged timeline.
	Contributions ContributionSource

	// Metrics, when set, is mounted on GET /metrics.
	Metrics http.Handler

	// SessionTTL bounds local account session lifetime.
	// Zero means 24 hours.
	SessionTTL time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:5173"
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	return cfg
}

// Server is the HTTP service.
type Server struct {
	cfg      Config
	oauth    *oauth2.Config
	sessions *sessionStore
	accounts *accountStore
}

// NewServer validates the configuration and assembles the
// service.
func NewServer(cfg Config) (*Server, error) {
	const errCtx = "creating http service"

	cfg = cfg.withDefaults()

	if cfg.InstanceURL == "" {
		return nil, fmt.Errorf(
			"%s: instance URL must be set", errCtx,
		)
	}

	if cfg.Users == nil {
		return nil, fmt.Errorf(
			"%s: user source must be set", errCtx,
		)
	}

	if cfg.Contributions == nil {
		return nil, fmt.Errorf(
			"%s: contribution source must be set", errCtx,
		)
	}

	base := strings.TrimRight(cfg.InstanceURL, "/")

	oauth := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       []string{"api"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  base + "/oauth/authorize",
			TokenURL: base + "/oauth/token",
		},
	}

	return &Server{
		cfg:      cfg,
		oauth:    oauth,
		sessions: newSessionStore(cfg.SessionTTL),
		accounts: newAccountStore(),
	}, nil
}

// Router assembles the route table behind the middleware
// chain: recovery, request logging, CORS.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.cfg.FrontendURL))

	r.Get("/", s.handleWelcome)
	r.Get("/login", s.handleLogin)
	r.Get("/login/callback", s.handleLoginCallback)
	r.Get("/profile", s.handleProfile)
	r.Get("/contributions", s.handleContributions)
	r.Post("/token", s.handleToken)
	r.Post("/signup", s.handleSignup)
	r.Get("/users/me", s.handleUsersMe)

	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	return r
}

// Run serves until ctx is canceled, then shuts down
// gracefully. Blocks until shutdown is complete.
func (s *Server) Run(ctx context.Context) error {
	const errCtx = "running http service"

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      70 * time.Second,
		IdleTimeout:       10 * time.Second,
	}

	failed := make(chan error, 1)

	go func() {
		failed <- srv.ListenAndServe()
	}()

	slog.Info(
		"http service listening",
		"addr", s.cfg.Addr,
	)

	select {
	case err := <-failed:
		return fmt.Errorf("%s: %w", errCtx, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf(
			"%s: shutdown: %w", errCtx, err,
		)
	}

	return nil
}
