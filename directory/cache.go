package directory

import (
	"context"
	"sync"
	"time"

	"gymtalk/models"
)

type entry struct {
	user models.User
	exp  time.Time
}

// Cached keeps user records for ttl. Trainer assignment is read through on
// every call since a reassignment must take effect immediately.
type Cached struct {
	next Directory
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	users map[string]entry
}

func NewCached(next Directory, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{next: next, ttl: ttl, now: time.Now, users: make(map[string]entry)}
}

func (c *Cached) User(ctx context.Context, userID string) (models.User, error) {
	c.mu.RLock()
	e, ok := c.users[userID]
	c.mu.RUnlock()
	if ok && c.now().Before(e.exp) {
		return e.user, nil
	}

	user, err := c.next.User(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	c.mu.Lock()
	c.users[userID] = entry{user: user, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return user, nil
}

// Prune drops expired users. Lookups never remove entries, so this runs on a
// ticker next to the rate limiter's.
func (c *Cached) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.users {
		if !now.Before(e.exp) {
			delete(c.users, id)
		}
	}
}

// Len returns the number of cached users, expired ones included.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

func (c *Cached) RoleOf(ctx context.Context, userID string) (models.Role, error) {
	user, err := c.User(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (c *Cached) ResolveTrainerFor(ctx context.Context, clientID string) (string, bool, error) {
	return c.next.ResolveTrainerFor(ctx, clientID)
}

func (c *Cached) IsAssigned(ctx context.Context, trainerID, clientID string) (bool, error) {
	return c.next.IsAssigned(ctx, trainerID, clientID)
}
