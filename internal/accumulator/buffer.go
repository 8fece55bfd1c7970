// Package accumulator merges point-in-time updates into a bounded, keyed
// sequence.
package accumulator

import (
	"sync"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
)

// Order selects where new items land.
type Order int

const (
	// OldestFirst appends new items; trimming drops from the front.
	OldestFirst Order = iota
	// NewestFirst prepends new items; trimming drops from the back.
	NewestFirst
)

const (
	// DefaultPathLimit bounds a job's retained location path.
	DefaultPathLimit = 2000
	// DefaultNotificationLimit bounds retained notifications.
	DefaultNotificationLimit = 200
)

// Buffer is an ordered sequence de-duplicated by key. Keys trimmed out of the
// window stay rejected until another limit's worth of keys has been trimmed
// after them. It is safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	key   func(T) string
	order Order
	limit int
	items []T
	keys  map[string]struct{}

	// evicted holds trimmed keys in trim order, at most limit of them.
	evicted    []string
	evictedSet map[string]struct{}
}

// New creates a buffer. A limit <= 0 means unbounded.
func New[T any](key func(T) string, order Order, limit int) *Buffer[T] {
	return &Buffer[T]{
		key:        key,
		order:      order,
		limit:      limit,
		keys:       make(map[string]struct{}),
		evictedSet: make(map[string]struct{}),
	}
}

// NewPath returns a location path buffer keyed by sample timestamp.
func NewPath(limit int) *Buffer[feed.LocationSample] {
	if limit <= 0 {
		limit = DefaultPathLimit
	}
	return New(func(s feed.LocationSample) string { return s.Timestamp }, OldestFirst, limit)
}

// NewNotifications returns a newest-first notification buffer keyed by id.
func NewNotifications() *Buffer[feed.Notification] {
	return New(func(n feed.Notification) string { return n.ID }, NewestFirst, DefaultNotificationLimit)
}

// Merge adds item unless an item with the same key is retained or was
// recently trimmed. Items with an empty key cannot be de-duplicated and are
// dropped. It reports whether the item was added.
func (b *Buffer[T]) Merge(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.add(item, b.order == NewestFirst)
}

// Seed replaces the contents with items, given in display order.
func (b *Buffer[T]) Seed(items []T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.keys = make(map[string]struct{}, len(items))
	b.evicted = nil
	b.evictedSet = make(map[string]struct{})
	for _, item := range items {
		b.add(item, false)
	}
}

// Reset empties the buffer.
func (b *Buffer[T]) Reset() {
	b.Seed(nil)
}

// Items returns a copy of the retained items in display order.
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *Buffer[T]) add(item T, front bool) bool {
	k := b.key(item)
	if k == "" {
		return false
	}
	if _, ok := b.keys[k]; ok {
		return false
	}
	if _, ok := b.evictedSet[k]; ok {
		return false
	}
	b.keys[k] = struct{}{}
	if front {
		b.items = append(b.items, item)
		copy(b.items[1:], b.items)
		b.items[0] = item
	} else {
		b.items = append(b.items, item)
	}
	b.trim()
	return true
}

// trim drops the oldest entries beyond the limit and moves their keys to the
// evicted set.
func (b *Buffer[T]) trim() {
	if b.limit <= 0 || len(b.items) <= b.limit {
		return
	}
	if b.order == NewestFirst {
		b.forget(b.items[b.limit:])
		clear(b.items[b.limit:])
		b.items = b.items[:b.limit]
		return
	}
	excess := len(b.items) - b.limit
	b.forget(b.items[:excess])
	b.items = append(b.items[:0:0], b.items[excess:]...)
}

func (b *Buffer[T]) forget(items []T) {
	for _, item := range items {
		k := b.key(item)
		delete(b.keys, k)
		if _, ok := b.evictedSet[k]; ok {
			continue
		}
		b.evictedSet[k] = struct{}{}
		b.evicted = append(b.evicted, k)
	}
	if over := len(b.evicted) - b.limit; over > 0 {
		for _, k := range b.evicted[:over] {
			delete(b.evictedSet, k)
		}
		b.evicted = append(b.evicted[:0:0], b.evicted[over:]...)
	}
}
