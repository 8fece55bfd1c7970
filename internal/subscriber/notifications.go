package subscriber

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/oremus-labs/ol-advisor-relay/internal/accumulator"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

// NotificationFeed follows the notifications of one recipient. It has no
// snapshot: only items pushed after the stream opens are collected.
type NotificationFeed struct {
	items *accumulator.Buffer[feed.Notification]

	// OnNotification, when set, is called for every newly accepted item.
	OnNotification func(feed.Notification)
}

// NewNotificationFeed creates a feed retaining the newest 200 items.
func NewNotificationFeed() *NotificationFeed {
	return &NotificationFeed{items: accumulator.NewNotifications()}
}

// NewNotificationSubscriber wires a NotificationFeed into a Subscriber.
func NewNotificationSubscriber(opts Options) (*Subscriber, *NotificationFeed) {
	f := NewNotificationFeed()
	return New(opts, f), f
}

// Path implements Handler.
func (f *NotificationFeed) Path(recipient string) string {
	return "/notifications/stream?recipient=" + url.QueryEscape(recipient)
}

// HandleEvent implements Handler.
func (f *NotificationFeed) HandleEvent(msg sse.Message) (bool, error) {
	if msg.Event != feed.EventNotification {
		return false, nil
	}
	var n feed.Notification
	if err := msg.Decode(&n); err != nil {
		return false, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		return false, errors.New("notification without id")
	}
	if f.items.Merge(n) && f.OnNotification != nil {
		f.OnNotification(n)
	}
	return false, nil
}

// Reset implements Handler.
func (f *NotificationFeed) Reset() {
	f.items.Reset()
}

// Items returns the retained notifications, newest first.
func (f *NotificationFeed) Items() []feed.Notification {
	return f.items.Items()
}
