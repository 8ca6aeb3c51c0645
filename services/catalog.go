package services

import (
	"context"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/repositories"
	gocache "github.com/patrickmn/go-cache"
)

// EventCatalog is the read-only event lookup used for precondition checks
// that happen before a unit of work starts.
type EventCatalog interface {
	Get(ctx context.Context, eventID string) (*models.Event, error)
	Invalidate(eventID string)
}

// CachedCatalog caches events for a short time. Only the fields that do not
// change after publish (kind, limit, deadline, approval) are safe to trust
// from it; counters and status are re-read under the event lock.
type CachedCatalog struct {
	store repositories.Reader
	cache *gocache.Cache
}

func NewCachedCatalog(store repositories.Reader, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedCatalog) Get(ctx context.Context, eventID string) (*models.Event, error) {
	if v, ok := c.cache.Get(eventID); ok {
		e := *v.(*models.Event)
		return &e, nil
	}
	ev, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, handleRepositoryError(err, ErrEventNotFound, "get event")
	}
	if ev.Status != models.EventStatusDraft {
		stored := *ev
		c.cache.SetDefault(eventID, &stored)
	}
	return ev, nil
}

func (c *CachedCatalog) Invalidate(eventID string) {
	c.cache.Delete(eventID)
}
