package instance

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Family identifies which client implementation serves an
// instance.
type Family string

const (
	// FamilyGitLab selects the GitLab API client.
	FamilyGitLab Family = "gitlab"
	// FamilyGitHub selects the GitHub API client.
	FamilyGitHub Family = "github"
)

// Credential identifies one remote instance and the token
// used to authenticate against it. Immutable once
// constructed; one per configured instance.
type Credential struct {
	// Name labels the instance in contributions,
	// snapshots and logs. Empty means the URL host.
	Name string `json:"name" yaml:"name"`

	// Family selects the client implementation.
	// Empty means gitlab.
	Family Family `json:"family" yaml:"family"`

	// URL is the base URL of the instance
	// (e.g. "https://gitlab.example.com").
	URL string `json:"url" yaml:"url"`

	// Token is the access token used as bearer.
	Token string `json:"-" yaml:"token"`
}

// Label returns the identifier recorded as the instance
// field of every record fetched under this credential:
// Name when set, otherwise the URL host.
func (c Credential) Label() string {
	if c.Name != "" {
		return c.Name
	}

	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return c.URL
	}

	return u.Host
}

// Validate reports whether the credential can be used to
// build a client.
func (c Credential) Validate() error {
	const errCtx = "validating credential"

	if c.URL == "" {
		return fmt.Errorf(
			"%s: url must be set", errCtx,
		)
	}

	if c.Token == "" {
		return fmt.Errorf(
			"%s: token must be set for %s",
			errCtx, c.Label(),
		)
	}

	switch c.Family {
	case "", FamilyGitLab, FamilyGitHub:
		return nil
	default:
		return fmt.Errorf(
			"%s: unknown family %q",
			errCtx, c.Family,
		)
	}
}

// User is the result of authenticating against one
// instance. All user-scoped fetches require it.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	CommitEmail string `json:"commit_email"`
	Instance    string `json:"instance"`
}

// Event is one entry of the user's activity feed, reduced
// to the fields the normalizer consumes.
type Event struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	ActionName  string    `json:"action_name"`
	TargetType  string    `json:"target_type"`
	TargetTitle string    `json:"target_title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Instance    string    `json:"instance"`
}

// Project is one project the user is associated with.
// CreatedAt bounds the commit search window: commits
// cannot predate project creation.
type Project struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path_with_namespace"`
	CreatedAt time.Time `json:"created_at"`
	Instance  string    `json:"instance"`
}

// Commit is one commit authored by the user in one of the
// instance's projects.
type Commit struct {
	ID          string    `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	AuthorEmail string    `json:"author_email"`
	AuthoredAt  time.Time `json:"authored_date"`
	CommittedAt time.Time `json:"committed_date"`
	WebURL      string    `json:"web_url,omitempty"`
	Instance    string    `json:"instance"`
}

// validActions is the allow-list of action verbs counted
// as contributions. Passive feed entries (joined, left,
// commented, deleted, ...) are excluded.
var validActions = map[string]struct{}{
	"created":  {},
	"opened":   {},
	"accepted": {},
	"merged":   {},
	"pushed":   {},
}

// CanonicalAction reduces an action_name to its lowercase
// leading verb. Feeds report pushes as "pushed to" or
// "pushed new"; the verb is what classifies them.
func CanonicalAction(action string) string {
	fields := strings.Fields(strings.ToLower(action))
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}

// ValidAction reports whether the action name counts as a
// contribution.
func ValidAction(action string) bool {
	_, ok := validActions[CanonicalAction(action)]

	return ok
}
