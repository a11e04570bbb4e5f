package main

// Config is the container for environment configuration.
// Values come from CONTRIBGRAPH_* variables; flags
// override them.
type Config struct {
	// Instances - comma-separated instance base URLs; takes precedence over InstancesFile
	Instances []string `default:""`

	// Tokens - comma-separated access tokens, one per entry in Instances
	Tokens []string `default:""`

	// InstancesFile - path to the YAML instance credential list
	InstancesFile string `default:"instances.yaml"`

	// ExportDir - directory for per-instance snapshots
	ExportDir string `default:"db"`

	// RepoDir - target directory for the rebuilt repository
	RepoDir string `default:"new_repo"`

	// Parallelism - concurrent instance fetches; 0 means one worker per instance
	Parallelism int `default:"0"`

	// MessageTemplate - commit message template override; empty means the default layout
	MessageTemplate string `default:""`

	// LogLevel - slog level: debug, info, warn or error
	LogLevel string `default:"info"`
}
