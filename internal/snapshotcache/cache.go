package snapshotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/accumulator"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/redis/go-redis/v9"
)

// Source loads snapshots from the datastore.
type Source interface {
	LocationSnapshot(ctx context.Context, jobID string, limit int) (*feed.LocationSnapshot, error)
}

// Cache serves job location snapshots from Redis, falling back to the
// datastore on a miss.
type Cache struct {
	source    Source
	redis     redis.UniversalClient
	logger    *log.Logger
	ttl       time.Duration
	keySpace  string
	pathLimit int
}

// Options configure the cache.
type Options struct {
	Source    Source
	Redis     redis.UniversalClient
	Logger    *log.Logger
	TTL       time.Duration
	KeySpace  string
	PathLimit int
}

// New creates a snapshot cache. Without Redis every read hits the source.
func New(opts Options) *Cache {
	keySpace := opts.KeySpace
	if keySpace == "" {
		keySpace = "advisor:location"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.PathLimit <= 0 {
		opts.PathLimit = accumulator.DefaultPathLimit
	}
	return &Cache{
		source:    opts.Source,
		redis:     opts.Redis,
		logger:    opts.Logger,
		ttl:       opts.TTL,
		keySpace:  keySpace,
		pathLimit: opts.PathLimit,
	}
}

func (c *Cache) key(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.keySpace, jobID)
}

// Snapshot returns the job's snapshot, preferring Redis.
func (c *Cache) Snapshot(ctx context.Context, jobID string) (*feed.LocationSnapshot, error) {
	key := c.key(jobID)
	if key == "" {
		return nil, errors.New("job id required")
	}
	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil && len(data) > 0 {
			var snap feed.LocationSnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				return &snap, nil
			}
		} else if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Printf("snapshot cache: redis get %s: %v", key, err)
		}
	}
	if c.source == nil {
		return nil, errors.New("snapshot source unavailable")
	}
	snap, err := c.source.LocationSnapshot(ctx, jobID, c.pathLimit)
	if err != nil {
		return nil, err
	}
	c.prime(ctx, key, snap)
	return snap, nil
}

// Invalidate drops the cached snapshot of a job after it changed.
func (c *Cache) Invalidate(ctx context.Context, jobID string) {
	key := c.key(jobID)
	if c.redis == nil || key == "" {
		return
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Printf("snapshot cache: failed to invalidate %s: %v", key, err)
	}
}

func (c *Cache) prime(ctx context.Context, key string, snap *feed.LocationSnapshot) {
	if c.redis == nil || snap == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Printf("snapshot cache: failed to prime %s: %v", key, err)
	}
}
