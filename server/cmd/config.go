package main

import "time"

// Config is the container for environment configuration.
// Values come from CONTRIBGRAPH_* variables; flags
// override them.
type Config struct {
	// Addr - HTTP listen address
	Addr string `default:":8000"`

	// FrontendURL - browser UI origin allowed by CORS and used for post-login redirects
	FrontendURL string `default:"http://localhost:5173"`

	// InstanceURL - primary instance base URL for the OAuth login flow
	InstanceURL string `default:"https://gitlab.com"`

	// InstanceFamily - API family of the primary instance; empty means gitlab
	InstanceFamily string `default:""`

	// OAuthClientID - OAuth application ID registered on the primary instance
	OAuthClientID string `default:""`

	// OAuthClientSecret - OAuth application secret
	OAuthClientSecret string `default:""`

	// OAuthRedirectURL - registered OAuth callback URL
	OAuthRedirectURL string `default:"http://localhost:8000/login/callback"`

	// InstancesFile - path to the YAML instance credential list
	InstancesFile string `default:"instances.yaml"`

	// ExportDir - directory for per-instance snapshots
	ExportDir string `default:"db"`

	// Parallelism - concurrent instance fetches; 0 means one worker per instance
	Parallelism int `default:"0"`

	// UserCacheSize - token resolution cache capacity
	UserCacheSize int `default:"128"`

	// UserCacheTTL - token resolution cache entry lifetime
	UserCacheTTL time.Duration `default:"5m"`

	// SessionTTL - local account session lifetime
	SessionTTL time.Duration `default:"24h"`

	// LogLevel - slog level: debug, info, warn or error
	LogLevel string `default:"info"`
}
