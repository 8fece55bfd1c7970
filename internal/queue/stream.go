package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
)

const (
	// DefaultStream is the Redis Stream carrying telemetry samples.
	DefaultStream = "advisor:telemetry"
	// DefaultGroup is the consumer group shared by ingestion workers.
	DefaultGroup = "telemetry-workers"
)

// ErrNotConfigured is returned when the queue has no Redis client.
var ErrNotConfigured = errors.New("telemetry queue not configured")

// TelemetryMessage wraps a location sample pushed through Redis.
type TelemetryMessage struct {
	ID         string              `json:"id"`
	Sample     feed.LocationSample `json:"sample"`
	EnqueuedAt string              `json:"enqueuedAt"`
}

// Producer publishes samples onto a Redis Stream.
type Producer struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewProducer constructs a producer for the provided stream.
func NewProducer(client redis.UniversalClient, stream string) *Producer {
	if stream == "" {
		stream = DefaultStream
	}
	return &Producer{client: client, stream: stream, maxLen: 100000}
}

// Enabled reports whether samples can be queued.
func (p *Producer) Enabled() bool {
	return p != nil && p.client != nil
}

// Enqueue pushes a sample to the stream and returns the message id.
func (p *Producer) Enqueue(ctx context.Context, sample feed.LocationSample) (string, error) {
	if !p.Enabled() {
		return "", ErrNotConfigured
	}
	msg := TelemetryMessage{
		ID:         uuid.NewString(),
		Sample:     sample,
		EnqueuedAt: feed.FormatTime(time.Now()),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"data": data,
		},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("enqueue sample for %s: %w", sample.JobID, err)
	}
	return msg.ID, nil
}

// Delivery is a message read from the group together with its stream id.
type Delivery struct {
	StreamID string
	Message  TelemetryMessage
}

// Consumer pulls samples from a Redis Stream consumer group.
type Consumer struct {
	client   redis.UniversalClient
	stream   string
	group    string
	name     string
	blockDur time.Duration
}

// NewConsumer creates a consumer bound to a stream + group.
func NewConsumer(client redis.UniversalClient, stream, group, name string) *Consumer {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	if name == "" {
		name = uuid.NewString()
	}
	return &Consumer{
		client:   client,
		stream:   stream,
		group:    group,
		name:     name,
		blockDur: 5 * time.Second,
	}
}

// Name returns the consumer name within the group.
func (c *Consumer) Name() string {
	return c.name
}

// EnsureGroup ensures the consumer group exists.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrNotConfigured
	}
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Next blocks for the next message. A nil delivery with a nil error means the
// block window elapsed without traffic. Undecodable messages are returned
// with their stream id so the caller can ack them away.
func (c *Consumer) Next(ctx context.Context) (*Delivery, error) {
	if c == nil || c.client == nil {
		return nil, ErrNotConfigured
	}
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.blockDur,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}
	return decode(res[0].Messages[0])
}

// Ack confirms processing of a message.
func (c *Consumer) Ack(ctx context.Context, id string) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	return c.client.XAck(ctx, c.stream, c.group, id).Err()
}

func decode(msg redis.XMessage) (*Delivery, error) {
	d := &Delivery{StreamID: msg.ID}
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return d, fmt.Errorf("message %s has no data field", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &d.Message); err != nil {
		return d, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return d, nil
}
