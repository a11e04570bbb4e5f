// Command contribgraph aggregates contribution activity
// from every configured instance and rebuilds the local
// activity repository from the merged timeline. It reads
// the instance list from a YAML file or from URL/token
// environment pairs, fetches or reuses per-instance
// snapshots, and prints a per-instance summary table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/runner"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	const errCtx = "running contribgraph"

	var conf Config

	if err := envconfig.Process(
		"contribgraph", &conf,
	); err != nil {
		return fmt.Errorf(
			"%s: parse environment: %w", errCtx, err,
		)
	}

	// Instance flags.
	instancesFile := flag.String(
		"instances", conf.InstancesFile,
		"Path to the instances YAML file",
	)
	parallelism := flag.Int(
		"parallelism", conf.Parallelism,
		"Concurrent instance fetches (0 = one per instance)",
	)

	// Storage flags.
	exportDir := flag.String(
		"export_dir", conf.ExportDir,
		"Directory for per-instance snapshots",
	)
	repoDir := flag.String(
		"repo_dir", conf.RepoDir,
		"Target directory for the rebuilt repository",
	)

	// Run mode flags.
	refresh := flag.Bool(
		"refresh", false,
		"Force live fetches even when snapshots exist",
	)
	dryRun := flag.Bool(
		"dry_run", false,
		"Collect and merge but skip the repository build",
	)
	logLevel := flag.String(
		"log_level", conf.LogLevel,
		"Log level: debug, info, warn or error",
	)

	flag.Parse()

	setupLogging(*logLevel)

	creds, err := loadCredentials(
		conf.Instances, conf.Tokens, *instancesFile,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	summary, err := runner.Run(
		context.Background(),
		runner.Config{
			Credentials:     creds,
			ExportDir:       *exportDir,
			RepoDir:         *repoDir,
			Parallelism:     *parallelism,
			Refresh:         *refresh,
			DryRun:          *dryRun,
			MessageTemplate: conf.MessageTemplate,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := writeSummary(os.Stdout, summary); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// loadCredentials resolves the instance list. Environment
// URL/token pairs win over the YAML file so one-off runs
// need no config file on disk.
func loadCredentials(
	urls []string,
	tokens []string,
	path string,
) ([]instance.Credential, error) {
	if len(urls) > 0 {
		return instance.Pairs(urls, tokens)
	}

	return instance.Load(path)
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
