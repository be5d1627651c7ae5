package api

import (
	"context"
	"sync"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// DefaultUserCacheTTL is how long a resolved operator is trusted.
const DefaultUserCacheTTL = 5 * time.Minute

// UserFetcher resolves the operator behind the bearer token. *Client
// implements it.
type UserFetcher interface {
	CurrentUser(ctx context.Context) (*models.User, error)
}

// UserCache remembers the operator between job commands. An expired entry is
// refreshed on the next Get. When that refresh fails and the token was not
// rejected, the previous user is served and Stale reports true until a
// refresh succeeds. A rejected token forgets the user.
type UserCache struct {
	fetcher UserFetcher
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	user      *models.User
	fetchedAt time.Time
	stale     bool
}

// NewUserCache creates a cache over fetcher. A non-positive ttl uses
// DefaultUserCacheTTL.
func NewUserCache(fetcher UserFetcher, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	return &UserCache{fetcher: fetcher, ttl: ttl, now: time.Now}
}

// Get returns the operator, asking the backend only when the entry expired.
// Concurrent callers share one lookup.
func (uc *UserCache) Get(ctx context.Context) (*models.User, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.user != nil && uc.now().Sub(uc.fetchedAt) < uc.ttl {
		return uc.user, nil
	}

	user, err := uc.fetcher.CurrentUser(ctx)
	switch {
	case err == nil:
		uc.user, uc.fetchedAt, uc.stale = user, uc.now(), false
		return user, nil
	case IsUnauthorized(err):
		uc.user, uc.stale = nil, false
		return nil, err
	case uc.user != nil:
		uc.stale = true
		return uc.user, nil
	default:
		return nil, err
	}
}

// Stale reports whether the last Get served an expired user because the
// backend could not be reached.
func (uc *UserCache) Stale() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.stale
}
