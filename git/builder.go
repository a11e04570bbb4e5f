// Package git materializes a contribution timeline as a
// local repository: one synthetic commit per contribution,
// author and committer dates forced to the contribution
// timestamp. The builder owns its target directory
// exclusively between Init and Finish.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/byte4ever/contribgraph/exec"
)

// ErrRepository marks any failed filesystem or git
// operation. Fatal for the whole run: a half-built
// history is worse than none.
var ErrRepository = errors.New("repository operation failed")

// markerFileName receives one appended line per commit so
// every commit has a staged change. The line content is
// not meaningful; the commit's existence is the payload.
const markerFileName = "contributions.log"

// buildState tracks the builder's lifecycle.
type buildState int

const (
	stateAbsent buildState = iota
	stateInitialized
	stateComplete
)

// Builder creates the target repository and emits commits
// in timeline order. Single-goroutine use only; the
// commit phase is strictly sequential because parent
// chaining encodes history linearly.
type Builder struct {
	// Dir is the target repository directory. Removed
	// and recreated on Init.
	Dir string

	// AuthorName and AuthorEmail identify the synthetic
	// commit author. Defaults applied by NewBuilder.
	AuthorName  string
	AuthorEmail string

	state   buildState
	commits int
}

// NewBuilder returns a builder for the given target
// directory.
func NewBuilder(dir string) (*Builder, error) {
	const errCtx = "creating repository builder"

	if dir == "" {
		return nil, fmt.Errorf(
			"%s: dir must be set", errCtx,
		)
	}

	return &Builder{
		Dir:         dir,
		AuthorName:  "contribgraph",
		AuthorEmail: "contribgraph@localhost",
	}, nil
}

// Init removes any previous repository at Dir and
// initializes a fresh empty one. Always a full rebuild;
// incremental append is intentionally not supported so
// reruns stay deterministic.
func (b *Builder) Init(ctx context.Context) error {
	const errCtx = "initializing repository"

	if err := os.RemoveAll(b.Dir); err != nil {
		return fmt.Errorf(
			"%s: remove dir: %w: %w",
			errCtx, ErrRepository, err,
		)
	}

	if err := os.MkdirAll(b.Dir, 0o750); err != nil {
		return fmt.Errorf(
			"%s: create dir: %w: %w",
			errCtx, ErrRepository, err,
		)
	}

	steps := [][]string{
		{"init", "-b", "main"},
		{"config", "user.name", b.AuthorName},
		{"config", "user.email", b.AuthorEmail},
		{"config", "core.hooksPath", "/dev/null"},
	}

	for _, args := range steps {
		if _, err := exec.Ex(
			ctx, b.Dir, "git", args...,
		); err != nil {
			return fmt.Errorf(
				"%s: %w: %w",
				errCtx, ErrRepository, err,
			)
		}
	}

	b.state = stateInitialized
	b.commits = 0

	return nil
}

// Commit appends a marker line and commits it with author
// and committer dates forced to date. Valid only between
// Init and Finish; messages follow the timeline order the
// caller iterates in.
func (b *Builder) Commit(
	ctx context.Context,
	message string,
	date time.Time,
) error {
	const errCtx = "committing contribution"

	if b.state != stateInitialized {
		return fmt.Errorf(
			"%s: %w: builder not initialized",
			errCtx, ErrRepository,
		)
	}

	line := fmt.Sprintf(
		"%s\t%s\n",
		date.UTC().Format(time.RFC3339),
		firstLine(message),
	)

	if err := appendMarker(
		filepath.Join(b.Dir, markerFileName), line,
	); err != nil {
		return fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRepository, err,
		)
	}

	if _, err := exec.Ex(
		ctx, b.Dir, "git", "add", markerFileName,
	); err != nil {
		return fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRepository, err,
		)
	}

	stamp := date.UTC().Format(time.RFC3339)

	if _, err := exec.ExEnv(
		ctx, b.Dir,
		[]string{
			"GIT_AUTHOR_DATE=" + stamp,
			"GIT_COMMITTER_DATE=" + stamp,
		},
		"git", "commit", "-m", message,
	); err != nil {
		return fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRepository, err,
		)
	}

	b.commits++

	return nil
}

// Finish seals the build. Further commits require a new
// Init.
func (b *Builder) Finish() error {
	const errCtx = "finishing repository"

	if b.state != stateInitialized {
		return fmt.Errorf(
			"%s: %w: builder not initialized",
			errCtx, ErrRepository,
		)
	}

	b.state = stateComplete

	return nil
}

// Committed returns the number of commits emitted since
// the last Init.
func (b *Builder) Committed() int {
	return b.commits
}

// CommitCount asks the repository itself how many commits
// it holds. Zero for an empty repository.
func (b *Builder) CommitCount(
	ctx context.Context,
) (int, error) {
	const errCtx = "counting commits"

	out, err := exec.Ex(
		ctx, b.Dir,
		"git", "rev-list", "--count", "HEAD",
	)
	if err != nil {
		// No HEAD yet means no commits.
		if strings.Contains(out, "unknown revision") {
			return 0, nil
		}

		return 0, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRepository, err,
		)
	}

	count, err := strconv.Atoi(
		strings.TrimSpace(out),
	)
	if err != nil {
		return 0, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRepository, err,
		)
	}

	return count, nil
}

// LastMessage returns the most recent commit message.
// Empty string when the repository has no commits.
func (b *Builder) LastMessage(
	ctx context.Context,
) string {
	msg, err := exec.Ex(
		ctx, b.Dir, "git", "log", "-1", "--pretty=%B",
	)
	if err != nil {
		return ""
	}

	return msg
}

// Clean removes the target directory entirely. Used when
// a failed build must not leave a half-committed history
// behind.
func (b *Builder) Clean() error {
	const errCtx = "cleaning repository"

	if err := os.RemoveAll(b.Dir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	b.state = stateAbsent
	b.commits = 0

	return nil
}

// appendMarker appends one line to the marker file,
// creating it on first use.
func appendMarker(path string, line string) error {
	fd, err := os.OpenFile( //nolint:gosec // path is builder-owned
		path,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o600,
	)
	if err != nil {
		return fmt.Errorf("opening marker: %w", err)
	}

	if _, err := fd.WriteString(line); err != nil {
		_ = fd.Close()

		return fmt.Errorf("appending marker: %w", err)
	}

	if err := fd.Close(); err != nil {
		return fmt.Errorf("closing marker: %w", err)
	}

	return nil
}

// firstLine trims a message to its first line for the
// marker file.
func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return message[:idx]
	}

	return message
}
