// Package gitlab implements the instance client for
// GitLab servers using the official API client.
package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/limiter"
)

// perPage is the page size for all list calls.
const perPage = 100

// Options tunes retry, rate limit and timeout behavior.
// The zero value gets sensible defaults.
type Options struct {
	// RetryMax bounds retries per request before the
	// failure surfaces.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff
	// between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RequestTimeout bounds one HTTP round trip.
	RequestTimeout time.Duration

	// MaxRate and Burst bound the outbound request
	// rate.
	MaxRate float64
	Burst   int
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

// Client fetches a user's activity from one GitLab
// instance.
//
// Pattern: Strategy -- implements instance.Client.
type Client struct {
	cred instance.Credential
	api  *gl.Client
}

// NewClient validates the credential and configures the
// underlying API client with bounded retries and a rate
// limited transport. The token is sent as a private token.
func NewClient(
	cred instance.Credential,
	opts Options,
) (*Client, error) {
	const errCtx = "creating gitlab client"

	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	api, err := gl.NewClient(
		cred.Token,
		apiOptions(cred, opts.withDefaults())...,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w: %w",
			errCtx, instance.ErrConnection, err,
		)
	}

	return &Client{cred: cred, api: api}, nil
}

// NewOAuthClient is NewClient for OAuth bearer tokens, as
// issued by the instance's authorization code flow.
func NewOAuthClient(
	cred instance.Credential,
	opts Options,
) (*Client, error) {
	const errCtx = "creating gitlab oauth client"

	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	api, err := gl.NewOAuthClient(
		cred.Token,
		apiOptions(cred, opts.withDefaults())...,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w: %w",
			errCtx, instance.ErrConnection, err,
		)
	}

	return &Client{cred: cred, api: api}, nil
}

// apiOptions assembles the shared client options: base
// URL, rate limited transport, bounded retries.
func apiOptions(
	cred instance.Credential,
	opts Options,
) []gl.ClientOptionFunc {
	return []gl.ClientOptionFunc{
		gl.WithBaseURL(cred.URL),
		gl.WithHTTPClient(limiter.Client(
			opts.MaxRate,
			opts.Burst,
			opts.RequestTimeout,
		)),
		gl.WithCustomRetryMax(opts.RetryMax),
		gl.WithCustomRetryWaitMinMax(
			opts.RetryWaitMin, opts.RetryWaitMax,
		),
	}
}

// Authenticate resolves the identity behind the token.
func (c *Client) Authenticate(
	ctx context.Context,
) (*instance.User, error) {
	const errCtx = "authenticating against gitlab"

	user, resp, err := c.api.Users.CurrentUser(
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w",
			errCtx, c.cred.Label(),
			classify(resp, err),
		)
	}

	commitEmail := user.CommitEmail
	if commitEmail == "" {
		commitEmail = user.Email
	}

	return &instance.User{
		ID:          int64(user.ID),
		Username:    user.Username,
		Name:        user.Name,
		Email:       user.Email,
		CommitEmail: commitEmail,
		Instance:    c.cred.Label(),
	}, nil
}

// Events returns the user's contribution events, oldest
// first, filtered to the contribution allow-list. On a
// mid-stream failure the pages fetched so far are
// returned alongside the error.
func (c *Client) Events(
	ctx context.Context,
) ([]instance.Event, error) {
	const errCtx = "fetching gitlab events"

	opt := &gl.ListContributionEventsOptions{
		ListOptions: gl.ListOptions{
			PerPage: perPage,
		},
		Sort: gl.Ptr("asc"),
	}

	var out []instance.Event

	for {
		events, resp, err :=
			c.api.Events.ListCurrentUserContributionEvents(
				opt, gl.WithContext(ctx),
			)
		if err != nil {
			return out, fmt.Errorf(
				"%s: %s: %w",
				errCtx, c.cred.Label(),
				classify(resp, err),
			)
		}

		for _, ev := range events {
			if !instance.ValidAction(ev.ActionName) {
				continue
			}

			out = append(out, instance.Event{
				ID:          int64(ev.ID),
				ProjectID:   int64(ev.ProjectID),
				ActionName:  ev.ActionName,
				TargetType:  ev.TargetType,
				TargetTitle: ev.TargetTitle,
				CreatedAt:   deref(ev.CreatedAt),
				Instance:    c.cred.Label(),
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

// Projects returns the projects the user is a member of,
// oldest first.
func (c *Client) Projects(
	ctx context.Context,
) ([]instance.Project, error) {
	const errCtx = "fetching gitlab projects"

	opt := &gl.ListProjectsOptions{
		ListOptions: gl.ListOptions{
			PerPage: perPage,
		},
		Membership: gl.Ptr(true),
		OrderBy:    gl.Ptr("created_at"),
		Sort:       gl.Ptr("asc"),
	}

	var out []instance.Project

	for {
		projects, resp, err :=
			c.api.Projects.ListProjects(
				opt, gl.WithContext(ctx),
			)
		if err != nil {
			return out, fmt.Errorf(
				"%s: %s: %w",
				errCtx, c.cred.Label(),
				classify(resp, err),
			)
		}

		for _, pr := range projects {
			out = append(out, instance.Project{
				ID:        int64(pr.ID),
				Path:      pr.PathWithNamespace,
				CreatedAt: deref(pr.CreatedAt),
				Instance:  c.cred.Label(),
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
// the given projects. The search window starts at project
// creation since commits cannot predate it. A failing
// project is logged and skipped so one broken project
// cannot sink the whole instance.
func (c *Client) Commits(
	ctx context.Context,
	user *instance.User,
	projects []instance.Project,
) ([]instance.Commit, error) {
	author := user.CommitEmail
	if author == "" {
		author = user.Email
	}

	var out []instance.Commit

	for _, pr := range projects {
		commits, err := c.projectCommits(
			ctx, pr, author,
		)
		if err != nil {
			slog.Warn(
				"skipping project commits",
				"instance", c.cred.Label(),
				"project", pr.Path,
				"error", err,
			)

			continue
		}

		out = append(out, commits...)
	}

	return out, nil
}

// projectCommits pages through one project's commits
// authored by the user.
func (c *Client) projectCommits(
	ctx context.Context,
	pr instance.Project,
	author string,
) ([]instance.Commit, error) {
	const errCtx = "fetching gitlab commits"

	opt := &gl.ListCommitsOptions{
		ListOptions: gl.ListOptions{
			PerPage: perPage,
		},
		All: gl.Ptr(true),
	}

	if author != "" {
		opt.Author = gl.Ptr(author)
	}

	if !pr.CreatedAt.IsZero() {
		opt.Since = gl.Ptr(pr.CreatedAt)
	}

	var out []instance.Commit

	for {
		commits, resp, err :=
			c.api.Commits.ListCommits(
				int(pr.ID), opt,
				gl.WithContext(ctx),
			)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %s: %w",
				errCtx, pr.Path,
				classify(resp, err),
			)
		}

		for _, cm := range commits {
			// The author query matches name or email;
			// keep strict author identity when we
			// filtered by email.
			if author != "" &&
				cm.AuthorEmail != "" &&
				!strings.EqualFold(
					cm.AuthorEmail, author,
				) {
				continue
			}

			out = append(out, instance.Commit{
				ID:          cm.ID,
				ProjectID:   pr.ID,
				Title:       cm.Title,
				AuthorEmail: cm.AuthorEmail,
				AuthoredAt:  deref(cm.AuthoredDate),
				CommittedAt: deref(cm.CommittedDate),
				WebURL:      cm.WebURL,
				Instance:    c.cred.Label(),
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

// classify folds an API error into the shared error
// taxonomy.
func classify(resp *gl.Response, err error) error {
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

// deref returns the pointed-to time or the zero time.
func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}
