// Package runner orchestrates a full aggregation run:
// concurrent per-instance fetches behind the export
// store, the single-threaded timeline merge, and the
// repository build with its closing verification.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/byte4ever/contribgraph/commitmsg"
	"github.com/byte4ever/contribgraph/contrib"
	"github.com/byte4ever/contribgraph/export"
	"github.com/byte4ever/contribgraph/git"
	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/instance/github"
	"github.com/byte4ever/contribgraph/instance/gitlab"
	"github.com/byte4ever/contribgraph/metrics"
)

// Status classifies one instance's outcome in a run.
type Status string

const (
	// StatusFetched means the instance was fetched live
	// and its snapshot saved.
	StatusFetched Status = "fetched"
	// StatusCached means the snapshot store answered
	// without touching the instance.
	StatusCached Status = "cached"
	// StatusFailed means the instance was skipped after
	// a connection, authentication or fetch error.
	StatusFailed Status = "failed"
)

// ClientFactory builds the family client for one
// credential.
type ClientFactory func(
	instance.Credential,
) (instance.Client, error)

// NewClient is the default factory: the credential family
// selects the implementation.
func NewClient(
	cred instance.Credential,
) (instance.Client, error) {
	switch cred.Family {
	case instance.FamilyGitHub:
		return github.NewClient(
			cred, github.Options{},
		)
	default:
		return gitlab.NewClient(
			cred, gitlab.Options{},
		)
	}
}

// Config holds all settings for an aggregation run. Use a
// Config struct instead of many arguments.
type Config struct {
	// Credentials lists the instances to aggregate, in
	// configuration order.
	Credentials []instance.Credential

	// ExportDir is the snapshot cache directory.
	ExportDir string

	// RepoDir is the target repository directory.
	RepoDir string

	// Parallelism bounds concurrent instance fetches.
	// Zero means one worker per instance.
	Parallelism int

	// Refresh forces live fetches even when snapshots
	// exist.
	Refresh bool

	// DryRun collects and merges but skips the
	// repository build.
	DryRun bool

	// MessageTemplate overrides the default commit
	// message layout. Empty means the default. The
	// closing message verification only runs with the
	// default layout.
	MessageTemplate string

	// Factory builds instance clients. Nil means
	// NewClient.
	Factory ClientFactory

	// Metrics receives run metrics. Nil means discard.
	Metrics metrics.Recorder
}

func (cfg Config) withDefaults() Config {
	if cfg.ExportDir == "" {
		cfg.ExportDir = "db"
	}

	if cfg.RepoDir == "" {
		cfg.RepoDir = "new_repo"
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = len(cfg.Credentials)
	}

	if cfg.Factory == nil {
		cfg.Factory = NewClient
	}

	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}

	return cfg
}

// InstanceResult reports one instance's outcome.
type InstanceResult struct {
	// Instance is the credential label.
	Instance string

	// Status is fetched, cached or failed.
	Status Status

	// Contributions counts this instance's entries in
	// the merged timeline.
	Contributions int

	// Err holds the failure for failed instances.
	Err error
}

// Summary reports a whole run.
type Summary struct {
	// Results holds one entry per configured instance,
	// in configuration order.
	Results []InstanceResult

	// Total is the merged timeline length.
	Total int

	// Commits is the number of commits written to the
	// repository. Zero on dry runs.
	Commits int
}

// Collect fetches all instances (live or from snapshot),
// normalizes and merges their contributions into one
// timeline. Per-instance failures degrade that instance
// to failed and never abort the others; the merge runs
// only after every fetch has completed.
func Collect(
	ctx context.Context,
	cfg Config,
) (contrib.Timeline, []InstanceResult, error) {
	const errCtx = "collecting contributions"

	cfg = cfg.withDefaults()

	if len(cfg.Credentials) == 0 {
		return nil, nil, fmt.Errorf(
			"%s: no instances configured", errCtx,
		)
	}

	store, err := export.NewStore(cfg.ExportDir)
	if err != nil {
		return nil, nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	outcomes := make(
		[]fetchOutcome, len(cfg.Credentials),
	)

	// Worker pool with bounded concurrency, one task
	// per instance.
	var wg sync.WaitGroup

	sem := make(chan struct{}, cfg.Parallelism)

	for i, cred := range cfg.Credentials {
		if ctx.Err() != nil {
			outcomes[i] = fetchOutcome{
				label:  cred.Label(),
				status: StatusFailed,
				err:    ctx.Err(),
			}

			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, cr instance.Credential) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[idx] = collectOne(
				ctx, cr, store, cfg,
			)
		}(i, cred)
	}

	wg.Wait()

	// Merge single-threaded, in configuration order so
	// the result never depends on fetch completion
	// order.
	batches := make(
		[][]contrib.Contribution, 0, len(outcomes),
	)

	for _, oc := range outcomes {
		if oc.snap == nil {
			continue
		}

		batches = append(batches, contrib.Normalize(
			oc.snap.Events, oc.snap.Commits,
		))
	}

	timeline := contrib.Merge(batches...)

	perInstance := timeline.CountByInstance()
	results := make(
		[]InstanceResult, len(outcomes),
	)

	for i, oc := range outcomes {
		results[i] = InstanceResult{
			Instance:      oc.label,
			Status:        oc.status,
			Contributions: perInstance[oc.label],
			Err:           oc.err,
		}

		if oc.status != StatusFailed {
			cfg.Metrics.ContributionsMerged(
				oc.label, perInstance[oc.label],
			)
		}
	}

	return timeline, results, nil
}

// Run executes the whole workflow: collect, merge, build,
// verify. Instance failures are reported in the summary;
// repository failures are fatal and leave no half-built
// repository behind.
func Run(
	ctx context.Context,
	cfg Config,
) (*Summary, error) {
	const errCtx = "running aggregation"

	cfg = cfg.withDefaults()

	// Step 1: Collect and merge all instances.
	timeline, results, err := Collect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	summary := &Summary{
		Results: results,
		Total:   len(timeline),
	}

	// Step 2: Skip the build on dry runs.
	if cfg.DryRun {
		slog.Info(
			"dry run: skipping repository build",
			"contributions", len(timeline),
		)

		return summary, nil
	}

	// Step 3: Rebuild the repository from the timeline.
	commits, err := build(ctx, cfg, timeline)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	summary.Commits = commits
	cfg.Metrics.CommitsEmitted(commits)

	return summary, nil
}

// fetchOutcome is one instance's collect result.
type fetchOutcome struct {
	label  string
	snap   *export.Snapshot
	status Status
	err    error
}

// collectOne resolves one instance: snapshot first, then
// a live fetch. Fetch order inside one instance is fixed:
// authenticate, events, projects, commits.
func collectOne(
	ctx context.Context,
	cred instance.Credential,
	store *export.Store,
	cfg Config,
) fetchOutcome {
	label := cred.Label()

	if !cfg.Refresh {
		if snap, ok := store.Load(label); ok {
			slog.Info(
				"using existing snapshot",
				"instance", label,
				"fetched_at", snap.FetchedAt,
			)
			cfg.Metrics.SnapshotHit(label)

			return fetchOutcome{
				label:  label,
				snap:   snap,
				status: StatusCached,
			}
		}
	}

	started := time.Now()

	snap, err := fetchLive(ctx, cred, cfg.Factory)
	if err != nil {
		slog.Error(
			"instance skipped",
			"instance", label,
			"error", err,
		)
		cfg.Metrics.FetchFailed(
			label, reasonFor(err),
		)

		return fetchOutcome{
			label:  label,
			status: StatusFailed,
			err:    err,
		}
	}

	cfg.Metrics.FetchSucceeded(label)
	cfg.Metrics.FetchDuration(time.Since(started))

	// A failed snapshot write only costs the next run a
	// re-fetch; the data in hand stays usable.
	if err := store.Save(snap); err != nil {
		slog.Warn(
			"snapshot not saved",
			"instance", label,
			"error", err,
		)
	}

	return fetchOutcome{
		label:  label,
		snap:   snap,
		status: StatusFetched,
	}
}

// fetchLive runs the sequential fetch chain against one
// instance.
func fetchLive(
	ctx context.Context,
	cred instance.Credential,
	factory ClientFactory,
) (*export.Snapshot, error) {
	client, err := factory(cred)
	if err != nil {
		return nil, err
	}

	user, err := client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	events, err := client.Events(ctx)
	if err != nil {
		return nil, err
	}

	projects, err := client.Projects(ctx)
	if err != nil {
		return nil, err
	}

	commits, err := client.Commits(
		ctx, user, projects,
	)
	if err != nil {
		return nil, err
	}

	return &export.Snapshot{
		Instance:  cred.Label(),
		FetchedAt: time.Now().UTC(),
		Events:    events,
		Projects:  projects,
		Commits:   commits,
	}, nil
}

// reasonFor labels an error for metrics.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, instance.ErrAuthentication):
		return "authentication"
	case errors.Is(err, instance.ErrConnection):
		return "connection"
	case errors.Is(err, instance.ErrFetch):
		return "fetch"
	default:
		return "internal"
	}
}

// build replays the timeline as commits and verifies the
// result. Any failure removes the target directory so no
// half-built history survives.
func build(
	ctx context.Context,
	cfg Config,
	timeline contrib.Timeline,
) (int, error) {
	const errCtx = "building repository"

	builder, err := git.NewBuilder(cfg.RepoDir)
	if err != nil {
		return 0, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	format := commitmsg.Format

	if cfg.MessageTemplate != "" {
		fm, fmErr := commitmsg.NewFormatter(
			cfg.MessageTemplate,
		)
		if fmErr != nil {
			return 0, fmt.Errorf(
				"%s: %w", errCtx, fmErr,
			)
		}

		format = fm.Format
	}

	if err := builder.Init(ctx); err != nil {
		return 0, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	for _, ctb := range timeline {
		if err := builder.Commit(
			ctx, format(ctb), ctb.Date,
		); err != nil {
			discard(builder)

			return 0, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}
	}

	if err := builder.Finish(); err != nil {
		discard(builder)

		return 0, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	if err := verify(
		ctx, builder, cfg, timeline,
	); err != nil {
		discard(builder)

		return 0, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return builder.Committed(), nil
}

// verify checks the commit-count invariant and, with the
// default message layout, that the newest commit traces
// back to the newest contribution.
func verify(
	ctx context.Context,
	builder *git.Builder,
	cfg Config,
	timeline contrib.Timeline,
) error {
	const errCtx = "verifying repository"

	count, err := builder.CommitCount(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if count != len(timeline) {
		return fmt.Errorf(
			"%s: %w: %d commits for %d contributions",
			errCtx, git.ErrRepository,
			count, len(timeline),
		)
	}

	if len(timeline) == 0 ||
		cfg.MessageTemplate != "" {
		return nil
	}

	parsed, ok := commitmsg.Parse(
		builder.LastMessage(ctx),
	)
	if !ok {
		return fmt.Errorf(
			"%s: %w: newest commit message unparseable",
			errCtx, git.ErrRepository,
		)
	}

	last := timeline[len(timeline)-1]

	if parsed.Type != last.Type ||
		parsed.ProjectID != last.ProjectID ||
		parsed.Instance != last.Instance ||
		parsed.Date.Unix() != last.Date.Unix() {
		return fmt.Errorf(
			"%s: %w: newest commit does not match newest contribution",
			errCtx, git.ErrRepository,
		)
	}

	return nil
}

// discard removes a partially built repository.
func discard(builder *git.Builder) {
	if err := builder.Clean(); err != nil {
		slog.Error(
			"failed to remove partial repository",
			"error", err,
		)
	}
}
