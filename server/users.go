package server

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/byte4ever/contribgraph/instance"
	"github.com/byte4ever/contribgraph/instance/github"
	"github.com/byte4ever/contribgraph/instance/gitlab"
)

// UserSource resolves an instance access token to the user
// behind it.
//
// Pattern: Strategy -- the service never talks to an
// instance directly.
type UserSource interface {
	UserForToken(
		ctx context.Context,
		token string,
	) (*instance.User, error)
}

// InstanceUsers queries one configured instance with the
// presented token. GitLab tokens from the login flow are
// OAuth bearer tokens, so the OAuth client constructor is
// used for that family.
type InstanceUsers struct {
	// URL is the instance base URL.
	URL string

	// Family selects the client implementation. Empty
	// means gitlab.
	Family string
}

// NewInstanceUsers returns a source for the given
// instance.
func NewInstanceUsers(
	url string,
	family string,
) (*InstanceUsers, error) {
	const errCtx = "creating instance user source"

	if url == "" {
		return nil, fmt.Errorf(
			"%s: url must be set", errCtx,
		)
	}

	return &InstanceUsers{URL: url, Family: family}, nil
}

// UserForToken authenticates the token against the
// instance and returns the resolved user.
func (iu *InstanceUsers) UserForToken(
	ctx context.Context,
	token string,
) (*instance.User, error) {
	const errCtx = "resolving token user"

	cred := instance.Credential{
		URL:    iu.URL,
		Family: iu.Family,
		Token:  token,
	}

	var (
		client instance.Client
		err    error
	)

	switch iu.Family {
	case instance.FamilyGitHub:
		client, err = github.NewClient(
			cred, github.Options{},
		)
	default:
		client, err = gitlab.NewOAuthClient(
			cred, gitlab.Options{},
		)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	user, err := client.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return user, nil
}

// userEntry is one cached token resolution.
type userEntry struct {
	created time.Time
	user    *instance.User
}

// CachedUsers wraps a UserSource with an LRU cache so hot
// tokens do not hit the instance on every request. Entries
// age out after ttl.
type CachedUsers struct {
	source UserSource
	cache  *lru.Cache
	ttl    time.Duration
}

// NewCachedUsers creates the caching decorator.
func NewCachedUsers(
	source UserSource,
	size int,
	ttl time.Duration,
) (*CachedUsers, error) {
	const errCtx = "creating user cache"

	if source == nil {
		return nil, fmt.Errorf(
			"%s: source must be set", errCtx,
		)
	}

	if size <= 0 {
		return nil, fmt.Errorf(
			"%s: cache size must be greater than 0",
			errCtx,
		)
	}

	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &CachedUsers{
		source: source,
		cache:  cache,
		ttl:    ttl,
	}, nil
}

// UserForToken serves from cache when the entry is fresh,
// otherwise delegates and caches the result. Failures are
// never cached.
func (c *CachedUsers) UserForToken(
	ctx context.Context,
	token string,
) (*instance.User, error) {
	if val, ok := c.cache.Get(token); ok {
		entry := val.(userEntry)
		if entry.created.Add(c.ttl).After(time.Now()) {
			return entry.user, nil
		}
	}

	user, err := c.source.UserForToken(ctx, token)
	if err != nil {
		return nil, err
	}

	c.cache.Add(token, userEntry{
		created: time.Now(),
		user:    user,
	})

	return user, nil
}
