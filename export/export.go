// Package export persists raw per-instance fetch results
// as snapshot files so repeated runs do not hit the remote
// APIs again. One directory per instance, one file per
// data category, each guarded by a digest sidecar. A
// snapshot that is missing, incomplete or corrupt reads as
// a cache miss, never as an error.
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/contribgraph/instance"
)

// errDigestMismatch marks a category file whose content
// no longer matches its recorded digest.
var errDigestMismatch = errors.New(
	"digest mismatch or missing file",
)

// Category file names inside one instance directory.
const (
	eventsFileName   = "events.json"
	projectsFileName = "projects.json"
	commitsFileName  = "commits.json"
)

// Snapshot holds everything fetched from one instance in
// one run.
type Snapshot struct {
	Instance  string             `json:"instance"`
	FetchedAt time.Time          `json:"fetched_at"`
	Events    []instance.Event   `json:"events"`
	Projects  []instance.Project `json:"projects"`
	Commits   []instance.Commit  `json:"commits"`
}

// categoryEnvelope is the on-disk shape of one category
// file. Records stays raw so the same envelope serves all
// three categories.
type categoryEnvelope struct {
	Instance  string          `json:"instance"`
	FetchedAt time.Time       `json:"fetched_at"`
	Records   json.RawMessage `json:"records"`
}

// Store owns the export directory. Snapshot directories
// are partitioned by instance label, so concurrent saves
// for different instances never touch the same files.
type Store struct {
	root string
}

// NewStore creates the export directory if needed and
// returns a store rooted there.
func NewStore(root string) (*Store, error) {
	const errCtx = "creating export store"

	if root == "" {
		return nil, fmt.Errorf(
			"%s: root must be set", errCtx,
		)
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return &Store{root: root}, nil
}

// Root returns the export directory path.
func (s *Store) Root() string {
	return s.root
}

// instanceDir maps an instance label onto its snapshot
// directory. Separator characters in the label are
// flattened so labels can never escape the root.
func (s *Store) instanceDir(label string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		default:
			return r
		}
	}, label)

	return filepath.Join(s.root, safe)
}

// Save writes the snapshot's three category files and
// their digest sidecars.
func (s *Store) Save(snap *Snapshot) error {
	const errCtx = "saving snapshot"

	dir := s.instanceDir(snap.Instance)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	files := []struct {
		name    string
		records any
	}{
		{eventsFileName, snap.Events},
		{projectsFileName, snap.Projects},
		{commitsFileName, snap.Commits},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)

		if err := writeCategory(
			path, snap, f.records,
		); err != nil {
			return fmt.Errorf(
				"%s: %s: %w",
				errCtx, f.name, err,
			)
		}
	}

	return nil
}

// writeCategory serializes one category envelope and
// records its digest.
func writeCategory(
	path string,
	snap *Snapshot,
	records any,
) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	buf, err := json.MarshalIndent(categoryEnvelope{
		Instance:  snap.Instance,
		FetchedAt: snap.FetchedAt,
		Records:   raw,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("writing: %w", err)
	}

	if err := saveDigest(path); err != nil {
		return fmt.Errorf("recording digest: %w", err)
	}

	return nil
}

// Load reads the snapshot for an instance label. The
// second result is false on any miss: no directory, a
// missing category file, a digest mismatch or undecodable
// content. Misses are logged, never returned as errors,
// so a damaged cache can only cost a re-fetch.
func (s *Store) Load(label string) (*Snapshot, bool) {
	dir := s.instanceDir(label)

	if _, err := os.Stat(dir); err != nil {
		return nil, false
	}

	snap := &Snapshot{Instance: label}

	type category struct {
		name string
		into any
	}

	categories := []category{
		{eventsFileName, &snap.Events},
		{projectsFileName, &snap.Projects},
		{commitsFileName, &snap.Commits},
	}

	for _, c := range categories {
		path := filepath.Join(dir, c.name)

		env, err := readCategory(path)
		if err != nil {
			slog.Warn(
				"snapshot unreadable, refetching",
				"instance", label,
				"file", c.name,
				"error", err,
			)

			return nil, false
		}

		if err := json.Unmarshal(
			env.Records, c.into,
		); err != nil {
			slog.Warn(
				"snapshot records undecodable, refetching",
				"instance", label,
				"file", c.name,
				"error", err,
			)

			return nil, false
		}

		snap.FetchedAt = env.FetchedAt
	}

	return snap, true
}

// readCategory verifies the digest and decodes one
// category envelope.
func readCategory(path string) (*categoryEnvelope, error) {
	ok, err := verifyDigest(path)
	if err != nil {
		return nil, fmt.Errorf(
			"verifying digest: %w", err,
		)
	}

	if !ok {
		return nil, errDigestMismatch
	}

	buf, err := os.ReadFile(path) //nolint:gosec // path is store-owned
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}

	var env categoryEnvelope

	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	return &env, nil
}
