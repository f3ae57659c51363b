package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"socrates-registration/domain"
)

type backend interface {
	Load(ctx context.Context, conferenceID string) (*domain.EventLog, string, error)
	Save(ctx context.Context, eventLog *domain.EventLog, version string) (string, error)
	EnqueueNotification(ctx context.Context, n Notification) error
}

// Cache wraps a Storage instance with Redis-backed caching of the loaded
// aggregate. The cached copy carries the version it was read at, so a caller
// working from cache still saves under optimistic concurrency. Every save
// attempt evicts the conference, successful or not: after a conflict the
// cached copy is known stale.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

type cachedAggregate struct {
	Version string          `json:"version"`
	Log     json.RawMessage `json:"log"`
}

func (c *Cache) Load(ctx context.Context, conferenceID string) (*domain.EventLog, string, error) {
	if eventLog, version, ok := c.loadFromCache(ctx, conferenceID); ok {
		return eventLog, version, nil
	}

	eventLog, version, err := c.base.Load(ctx, conferenceID)
	if err != nil {
		return nil, "", err
	}

	c.store(ctx, conferenceID, eventLog, version)
	return eventLog, version, nil
}

func (c *Cache) Save(ctx context.Context, eventLog *domain.EventLog, version string) (string, error) {
	newVersion, err := c.base.Save(ctx, eventLog, version)
	c.evict(ctx, eventLog.ConferenceID)
	return newVersion, err
}

func (c *Cache) EnqueueNotification(ctx context.Context, n Notification) error {
	return c.base.EnqueueNotification(ctx, n)
}

func (c *Cache) loadFromCache(ctx context.Context, conferenceID string) (*domain.EventLog, string, bool) {
	if c.redis == nil {
		return nil, "", false
	}
	data, err := c.redis.Get(ctx, aggregateCacheKey(conferenceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, aggregateCacheKey(conferenceID)).Err()
		}
		return nil, "", false
	}
	var cached cachedAggregate
	if err := json.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, aggregateCacheKey(conferenceID)).Err()
		return nil, "", false
	}
	eventLog, err := domain.DecodeEventLog(cached.Log)
	if err != nil {
		_ = c.redis.Del(ctx, aggregateCacheKey(conferenceID)).Err()
		return nil, "", false
	}
	return eventLog, cached.Version, true
}

func (c *Cache) store(ctx context.Context, conferenceID string, eventLog *domain.EventLog, version string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	doc, err := domain.EncodeEventLog(eventLog)
	if err != nil {
		return
	}
	data, err := json.Marshal(cachedAggregate{Version: version, Log: doc})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, aggregateCacheKey(conferenceID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, conferenceID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, aggregateCacheKey(conferenceID)).Result()
}

func aggregateCacheKey(conferenceID string) string {
	return "registration:" + conferenceID
}
