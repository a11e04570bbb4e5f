package server

import (
	"context"

	"github.com/byte4ever/contribgraph/contrib"
	"github.com/byte4ever/contribgraph/runner"
)

// ContributionSource yields the merged contribution
// timeline served on /contributions.
type ContributionSource interface {
	Collect(ctx context.Context) (contrib.Timeline, error)
}

// RunnerSource adapts the aggregation runner: every query
// walks the snapshot-backed collection path, so repeated
// requests stay cheap and never rebuild the repository.
type RunnerSource struct {
	// Config drives the collection. DryRun and RepoDir
	// are ignored here; the service never builds.
	Config runner.Config
}

// Collect merges all configured instances into one
// timeline.
func (rs *RunnerSource) Collect(
	ctx context.Context,
) (contrib.Timeline, error) {
	timeline, _, err := runner.Collect(ctx, rs.Config)
	if err != nil {
		return nil, err
	}

	return timeline, nil
}
