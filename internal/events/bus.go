package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/ol-advisor-relay/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Event is one feed event routed by topic.
type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Origin    string          `json:"origin,omitempty"`
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Bus fans events out to local subscribers of a topic. With a Redis client,
// events are also relayed between processes over pub/sub.
type Bus struct {
	client redis.UniversalClient
	logger *log.Logger
	ch     string
	origin string
	buffer int

	mu     sync.RWMutex
	topics map[string]map[chan Event]struct{}

	stop context.CancelFunc
	done chan struct{}
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Logger  *log.Logger
	Channel string
	// Buffer is the per-subscriber backlog; events beyond it are dropped.
	Buffer int
}

// NewBus creates a new event bus.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = "advisor-relay-events"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	bus := &Bus{
		client: opts.Client,
		logger: opts.Logger,
		ch:     channel,
		origin: uuid.NewString(),
		buffer: buffer,
		topics: make(map[string]map[chan Event]struct{}),
	}
	if bus.client != nil {
		ctx, cancel := context.WithCancel(context.Background())
		bus.stop = cancel
		bus.done = make(chan struct{})
		go bus.observeRedis(ctx)
	}
	return bus
}

// Publish sends data as an event of type typ on topic.
func (b *Bus) Publish(ctx context.Context, topic, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", typ, err)
	}
	evt := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      raw,
		Origin:    b.origin,
	}

	if b.client != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}

	metrics.FeedEventPublished(typ)
	b.broadcast(evt)
	return nil
}

// Subscribe registers a subscriber for topic. The channel is closed by the
// returned cancel func or when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan Event]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stopped := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stopped)
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stopped:
		}
	}()

	return ch, cancel
}

// Subscribers returns the number of local subscribers of topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close stops the Redis observer.
func (b *Bus) Close() {
	if b.stop != nil {
		b.stop()
		<-b.done
	}
}

func (b *Bus) broadcast(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.topics[evt.Topic] {
		select {
		case ch <- evt:
		default:
			b.logf("events: dropping event %s on %s (subscriber backlog)", evt.ID, evt.Topic)
		}
	}
}

func (b *Bus) observeRedis(ctx context.Context) {
	defer close(b.done)
	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logf("events: redis subscriber error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			b.logf("events: invalid payload: %v", err)
			continue
		}
		if evt.Origin == b.origin {
			continue
		}
		b.broadcast(evt)
	}
}

func (b *Bus) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}
