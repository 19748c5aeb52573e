package testutil

import (
	"context"
	"sync"

	"office-affinity/internal/models"
)

// StaticCatalog serves a fixed profile list; SetProfiles replaces it and
// notifies subscribers synchronously.
type StaticCatalog struct {
	mu       sync.Mutex
	profiles []models.Profile
	subs     map[int]func()
	next     int
	err      error
}

func NewStaticCatalog(profiles ...models.Profile) *StaticCatalog {
	return &StaticCatalog{profiles: profiles, subs: map[int]func(){}}
}

func (c *StaticCatalog) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return append([]models.Profile(nil), c.profiles...), nil
}

func (c *StaticCatalog) OnProfileChanged(fn func()) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SetProfiles replaces the list and fires every subscriber.
func (c *StaticCatalog) SetProfiles(profiles ...models.Profile) {
	c.mu.Lock()
	c.profiles = profiles
	subs := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// FailWith makes ListProfiles return err.
func (c *StaticCatalog) FailWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
