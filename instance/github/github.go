// Package github implements the instance client for
// GitHub and GitHub Enterprise servers with the go-github
// client. GitHub's event and commit shapes are folded
// into the same action vocabulary the gitlab client
// produces, so the normalizer never sees the difference.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/limiter"
)

// perPage is the page size for all list calls.
const perPage = 100

// Options tunes retry, rate limit and timeout behavior.
// The zero value gets sensible defaults.
type Options struct {
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	RequestTimeout time.Duration
	MaxRate        float64
	Burst          int
}

func (o Options) withDefaults() Options {
	if o.RetryMax <= 0 {
		o.RetryMax = 4
	}

	if o.RetryWaitMin <= 0 {
		o.RetryWaitMin = 500 * time.Millisecond
	}

	if o.RetryWaitMax <= 0 {
		o.RetryWaitMax = 8 * time.Second
	}

	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}

	if o.MaxRate <= 0 {
		o.MaxRate = 10
	}

	if o.Burst <= 0 {
		o.Burst = 5
	}

	return o
}

// Client fetches a user's activity from one GitHub
// instance.
//
// Pattern: Strategy -- implements instance.Client.
type Client struct {
	cred instance.Credential
	api  *gh.Client

	// login caches the authenticated user's login for
	// the events feed, which is addressed by username.
	login string
}

// NewClient validates the credential and configures the
// underlying API client. go-github carries no retry
// logic of its own, so requests go through a
// retryablehttp client over a rate limited transport.
func NewClient(
	cred instance.Credential,
	opts Options,
) (*Client, error) {
	const errCtx = "creating github client"

	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	opts = opts.withDefaults()

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.Logger = nil
	rc.HTTPClient = limiter.Client(
		opts.MaxRate, opts.Burst, opts.RequestTimeout,
	)

	api := gh.NewClient(rc.StandardClient())

	if !isPublicGitHub(cred.URL) {
		var err error

		api, err = api.WithEnterpriseURLs(
			cred.URL, cred.URL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w: %w",
				errCtx, instance.ErrConnection, err,
			)
		}
	}

	return &Client{
		cred: cred,
		api:  api.WithAuthToken(cred.Token),
	}, nil
}

// isPublicGitHub reports whether the URL points at
// github.com rather than an enterprise install.
func isPublicGitHub(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Host)

	return host == "github.com" ||
		host == "www.github.com" ||
		host == "api.github.com"
}

// Authenticate resolves the identity behind the token.
func (c *Client) Authenticate(
	ctx context.Context,
) (*instance.User, error) {
	const errCtx = "authenticating against github"

	user, resp, err := c.api.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w",
			errCtx, c.cred.Label(),
			classify(resp, err),
		)
	}

	c.login = user.GetLogin()

	return &instance.User{
		ID:          user.GetID(),
		Username:    user.GetLogin(),
		Name:        user.GetName(),
		Email:       user.GetEmail(),
		CommitEmail: user.GetEmail(),
		Instance:    c.cred.Label(),
	}, nil
}

// ensureLogin resolves the authenticated login when
// Events is called before Authenticate.
func (c *Client) ensureLogin(
	ctx context.Context,
) error {
	if c.login != "" {
		return nil
	}

	_, err := c.Authenticate(ctx)

	return err
}

// Events returns the user's activity feed translated to
// contribution actions, oldest first. GitHub serves the
// feed newest first, so the translated batch is reversed
// before returning.
func (c *Client) Events(
	ctx context.Context,
) ([]instance.Event, error) {
	const errCtx = "fetching github events"

	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	opt := &gh.ListOptions{PerPage: perPage}

	var out []instance.Event

	for {
		events, resp, err :=
			c.api.Activity.ListEventsPerformedByUser(
				ctx, c.login, false, opt,
			)
		if err != nil {
			return reverse(out), fmt.Errorf(
				"%s: %s: %w",
				errCtx, c.cred.Label(),
				classify(resp, err),
			)
		}

		for _, ev := range events {
			mapped, ok := translateEvent(ev)
			if !ok {
				continue
			}

			mapped.Instance = c.cred.Label()
			out = append(out, mapped)
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return reverse(out), nil
}

// translateEvent folds one GitHub event into the shared
// action vocabulary. Unsupported event types report
// false.
func translateEvent(
	ev *gh.Event,
) (instance.Event, bool) {
	payload, err := ev.ParsePayload()
	if err != nil {
		return instance.Event{}, false
	}

	base := instance.Event{
		ID:        parseEventID(ev.GetID()),
		ProjectID: ev.GetRepo().GetID(),
		CreatedAt: ev.GetCreatedAt().Time,
	}

	switch pl := payload.(type) {
	case *gh.CreateEvent:
		if pl.GetRefType() != "repository" {
			return instance.Event{}, false
		}

		base.ActionName = "created"

		return base, true

	case *gh.PushEvent:
		base.ActionName = "pushed"

		return base, true

	case *gh.PullRequestEvent:
		base.TargetType = "MergeRequest"
		base.TargetTitle =
			pl.GetPullRequest().GetTitle()

		switch {
		case pl.GetAction() == "opened":
			base.ActionName = "opened"

			return base, true
		case pl.GetAction() == "closed" &&
			pl.GetPullRequest().GetMerged():
			base.ActionName = "accepted"

			return base, true
		default:
			return instance.Event{}, false
		}

	case *gh.IssuesEvent:
		if pl.GetAction() != "opened" {
			return instance.Event{}, false
		}

		base.ActionName = "opened"
		base.TargetType = "Issue"
		base.TargetTitle = pl.GetIssue().GetTitle()

		return base, true

	default:
		return instance.Event{}, false
	}
}

// parseEventID converts GitHub's numeric string event id.
func parseEventID(id string) int64 {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}

	return v
}

// reverse flips a newest-first batch in place to oldest
// first.
func reverse(evs []instance.Event) []instance.Event {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}

	return evs
}

// Projects returns the repositories the user owns or
// collaborates on, oldest first.
func (c *Client) Projects(
	ctx context.Context,
) ([]instance.Project, error) {
	const errCtx = "fetching github repositories"

	opt := &gh.RepositoryListByAuthenticatedUserOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
		Sort:        "created",
		Direction:   "asc",
	}

	var out []instance.Project

	for {
		repos, resp, err :=
			c.api.Repositories.ListByAuthenticatedUser(
				ctx, opt,
			)
		if err != nil {
			return out, fmt.Errorf(
				"%s: %s: %w",
				errCtx, c.cred.Label(),
				classify(resp, err),
			)
		}

		for _, repo := range repos {
			out = append(out, instance.Project{
				ID:   repo.GetID(),
				Path: repo.GetFullName(),
				CreatedAt: repo.GetCreatedAt().
					Time,
				Instance: c.cred.Label(),
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

// Commits returns the commits authored by the user across
// the given repositories. Author filtering uses the
// GitHub login, which matches regardless of the commit
// email. A failing repository is logged and skipped.
func (c *Client) Commits(
	ctx context.Context,
	user *instance.User,
	projects []instance.Project,
) ([]instance.Commit, error) {
	author := user.Username
	if author == "" {
		author = user.CommitEmail
	}

	var out []instance.Commit

	for _, pr := range projects {
		commits, err := c.projectCommits(
			ctx, pr, author,
		)
		if err != nil {
			slog.Warn(
				"skipping repository commits",
				"instance", c.cred.Label(),
				"repository", pr.Path,
				"error", err,
			)

			continue
		}

		out = append(out, commits...)
	}

	return out, nil
}

// projectCommits pages through one repository's commits
// authored by the user. An empty repository answers 409
// and reads as zero commits.
func (c *Client) projectCommits(
	ctx context.Context,
	pr instance.Project,
	author string,
) ([]instance.Commit, error) {
	const errCtx = "fetching github commits"

	owner, repo, ok := splitFullName(pr.Path)
	if !ok {
		return nil, fmt.Errorf(
			"%s: malformed repository path %q",
			errCtx, pr.Path,
		)
	}

	opt := &gh.CommitsListOptions{
		Author: author,
		ListOptions: gh.ListOptions{
			PerPage: perPage,
		},
	}

	if !pr.CreatedAt.IsZero() {
		opt.Since = pr.CreatedAt
	}

	var out []instance.Commit

	for {
		commits, resp, err :=
			c.api.Repositories.ListCommits(
				ctx, owner, repo, opt,
			)
		if err != nil {
			if resp != nil &&
				resp.StatusCode ==
					http.StatusConflict {
				// Empty repository.
				return out, nil
			}

			return nil, fmt.Errorf(
				"%s: %s: %w",
				errCtx, pr.Path,
				classify(resp, err),
			)
		}

		for _, cm := range commits {
			detail := cm.GetCommit()

			out = append(out, instance.Commit{
				ID:        cm.GetSHA(),
				ProjectID: pr.ID,
				Title: firstLine(
					detail.GetMessage(),
				),
				AuthorEmail: detail.GetAuthor().
					GetEmail(),
				AuthoredAt: detail.GetAuthor().
					GetDate().Time,
				CommittedAt: detail.GetCommitter().
					GetDate().Time,
				WebURL:   cm.GetHTMLURL(),
				Instance: c.cred.Label(),
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

// splitFullName splits "owner/repo" into its parts.
func splitFullName(full string) (string, string, bool) {
	owner, repo, found := strings.Cut(full, "/")
	if !found || owner == "" || repo == "" {
		return "", "", false
	}

	return owner, repo, true
}

// firstLine trims a commit message to its title line.
func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return strings.TrimSpace(message[:idx])
	}

	return message
}

// classify folds an API error into the shared error
// taxonomy.
func classify(resp *gh.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized,
			http.StatusForbidden:
			return fmt.Errorf(
				"%w: %w",
				instance.ErrAuthentication, err,
			)
		}

		return fmt.Errorf(
			"%w: %w", instance.ErrFetch, err,
		)
	}

	return fmt.Errorf(
		"%w: %w", instance.ErrConnection, err,
	)
}
