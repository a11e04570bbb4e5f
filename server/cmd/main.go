// Command contribgraph-server runs the HTTP service: the
// instance OAuth login flow, profile and contribution
// queries for the browser UI, local account sessions and
// the Prometheus scrape endpoint. Contribution queries go
// through the same snapshot-backed collection path as the
// command line runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/metrics"
	"github.com/byte4ever/contribgraph/runner"
	"github.com/byte4ever/contribgraph/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	const errCtx = "running contribgraph server"

	var conf Config

	if err := envconfig.Process(
		"contribgraph", &conf,
	); err != nil {
		return fmt.Errorf(
			"%s: parse environment: %w", errCtx, err,
		)
	}

	// Service flags.
	addr := flag.String(
		"addr", conf.Addr,
		"HTTP listen address",
	)
	frontendURL := flag.String(
		"frontend_url", conf.FrontendURL,
		"Browser UI origin",
	)
	instanceURL := flag.String(
		"instance_url", conf.InstanceURL,
		"Primary instance base URL for OAuth login",
	)

	// Collection flags.
	instancesFile := flag.String(
		"instances", conf.InstancesFile,
		"Path to the instances YAML file",
	)
	exportDir := flag.String(
		"export_dir", conf.ExportDir,
		"Directory for per-instance snapshots",
	)
	logLevel := flag.String(
		"log_level", conf.LogLevel,
		"Log level: debug, info, warn or error",
	)

	flag.Parse()

	setupLogging(*logLevel)

	creds, err := instance.Load(*instancesFile)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	users, err := server.NewInstanceUsers(
		*instanceURL, conf.InstanceFamily,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cachedUsers, err := server.NewCachedUsers(
		users, conf.UserCacheSize, conf.UserCacheTTL,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	srv, err := server.NewServer(server.Config{
		Addr:              *addr,
		FrontendURL:       *frontendURL,
		InstanceURL:       *instanceURL,
		OAuthClientID:     conf.OAuthClientID,
		OAuthClientSecret: conf.OAuthClientSecret,
		OAuthRedirectURL:  conf.OAuthRedirectURL,
		Users:             cachedUsers,
		Contributions: &server.RunnerSource{
			Config: runner.Config{
				Credentials: creds,
				ExportDir:   *exportDir,
				Parallelism: conf.Parallelism,
				Metrics:     collector,
			},
		},
		Metrics:    metrics.Handler(reg),
		SessionTTL: conf.SessionTTL,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	ctx, cancel := context.WithCancel(
		context.Background(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigCh)
		cancel()
	}()

	// Cancel context on signal.
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// setupLogging installs a text handler at the requested
// level. Unknown levels fall back to info.
func setupLogging(level string) {
	var lv slog.Level

	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(
			os.Stderr,
			&slog.HandlerOptions{Level: lv},
		),
	))
}
