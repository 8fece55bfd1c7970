package inventory

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Capabilities describes optional inventory schema features.
type Capabilities struct {
	WeeklySales bool
}

type columnLister interface {
	Columns(ctx context.Context, table string) (map[string]bool, error)
}

// CapabilityCache probes the schema once per process. Concurrent callers share
// one in-flight probe; a failed probe is not cached.
type CapabilityCache struct {
	group singleflight.Group

	mu     sync.RWMutex
	caps   Capabilities
	loaded bool
}

// DefaultCapabilities is the process-wide cache used by aggregators that do
// not supply their own.
var DefaultCapabilities = &CapabilityCache{}

// Get returns the cached capabilities, probing src on first use.
func (c *CapabilityCache) Get(ctx context.Context, src columnLister) (Capabilities, error) {
	c.mu.RLock()
	if c.loaded {
		caps := c.caps
		c.mu.RUnlock()
		return caps, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("inventory_items", func() (interface{}, error) {
		cols, err := src.Columns(ctx, "inventory_items")
		if err != nil {
			return Capabilities{}, err
		}
		caps := Capabilities{WeeklySales: cols["weekly_sales"]}
		c.mu.Lock()
		c.caps, c.loaded = caps, true
		c.mu.Unlock()
		return caps, nil
	})
	if err != nil {
		return Capabilities{}, err
	}
	return v.(Capabilities), nil
}

// Reset forgets the cached probe.
func (c *CapabilityCache) Reset() {
	c.mu.Lock()
	c.caps, c.loaded = Capabilities{}, false
	c.mu.Unlock()
}
