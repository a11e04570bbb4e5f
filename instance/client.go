package instance

import (
	"context"
	"errors"
)

// Sentinel errors wrapped by every client implementation.
// Callers branch on the category, never on transport
// details.
var (
	// ErrConnection marks transport failures that
	// survived the retry budget.
	ErrConnection = errors.New("instance unreachable")

	// ErrAuthentication marks rejected credentials
	// (401/403). Never retried.
	ErrAuthentication = errors.New("authentication rejected")

	// ErrFetch marks any other failed fetch after
	// authentication succeeded.
	ErrFetch = errors.New("fetch failed")
)

// Client is the capability surface of one instance. One
// client per configured credential; implementations are
// safe for use by a single goroutine.
//
// Pattern: Strategy -- concrete families (gitlab, github)
// implement the same fetch surface, selected by
// configuration.
type Client interface {
	// Authenticate resolves the identity behind the
	// token. Must be called before the fetches.
	Authenticate(ctx context.Context) (*User, error)

	// Events returns the user's contribution events,
	// all pages, filtered to valid actions, ordered
	// oldest first.
	Events(ctx context.Context) ([]Event, error)

	// Projects returns the projects the user is a
	// member of, ordered oldest first.
	Projects(
		ctx context.Context,
	) ([]Project, error)

	// Commits returns the commits authored by the user
	// across the given projects, using the commit email
	// when the instance exposes one. A project that
	// fails is skipped, not fatal.
	Commits(
		ctx context.Context,
		user *User,
		projects []Project,
	) ([]Commit, error)
}
