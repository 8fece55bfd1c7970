package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/accumulator"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

// LocationFeed follows the live location of one job. The key is the job id.
type LocationFeed struct {
	mu         sync.RWMutex
	current    *feed.LocationSample
	completion *feed.Completion
	path       *accumulator.Buffer[feed.LocationSample]

	// OnUpdate, when set, is called after every accepted sample or completion.
	OnUpdate func()
}

// NewLocationFeed creates a feed retaining at most pathLimit samples.
func NewLocationFeed(pathLimit int) *LocationFeed {
	return &LocationFeed{path: accumulator.NewPath(pathLimit)}
}

// NewLocationSubscriber wires a LocationFeed into a Subscriber.
func NewLocationSubscriber(opts Options, pathLimit int) (*Subscriber, *LocationFeed) {
	f := NewLocationFeed(pathLimit)
	return New(opts, f), f
}

func jobPath(jobID string) string {
	return "/jobs/" + url.PathEscape(jobID) + "/location"
}

// Path implements Handler.
func (f *LocationFeed) Path(jobID string) string {
	return jobPath(jobID) + "/stream"
}

// Snapshot loads the job's current position and path. A missing job is not
// an error.
func (f *LocationFeed) Snapshot(ctx context.Context, fetch Fetcher, jobID string) error {
	var snap feed.LocationSnapshot
	found, err := fetch.GetJSON(ctx, jobPath(jobID), &snap)
	if err != nil || !found {
		return err
	}
	f.path.Seed(snap.Path)
	f.mu.Lock()
	if snap.Current != nil {
		cur := *snap.Current
		f.current = &cur
	}
	f.mu.Unlock()
	f.notify()
	return nil
}

// HandleEvent implements Handler.
func (f *LocationFeed) HandleEvent(msg sse.Message) (bool, error) {
	switch msg.Event {
	case feed.EventLocation:
		var sample feed.LocationSample
		if err := msg.Decode(&sample); err != nil {
			return false, fmt.Errorf("decode location: %w", err)
		}
		if sample.Timestamp == "" {
			return false, errors.New("location sample without timestamp")
		}
		if !f.path.Merge(sample) {
			return false, nil
		}
		f.mu.Lock()
		if f.current == nil || newer(sample.Timestamp, f.current.Timestamp) {
			f.current = &sample
		}
		f.mu.Unlock()
		f.notify()
		return false, nil
	case feed.EventCompleted:
		var c feed.Completion
		if err := msg.Decode(&c); err != nil {
			return false, fmt.Errorf("decode completion: %w", err)
		}
		f.mu.Lock()
		f.completion = &c
		f.mu.Unlock()
		f.notify()
		return true, nil
	default:
		return false, nil
	}
}

// Reset implements Handler.
func (f *LocationFeed) Reset() {
	f.path.Reset()
	f.mu.Lock()
	f.current = nil
	f.completion = nil
	f.mu.Unlock()
}

// Current returns the most recent sample, or nil.
func (f *LocationFeed) Current() *feed.LocationSample {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil
	}
	cur := *f.current
	return &cur
}

// Samples returns the retained path, oldest first.
func (f *LocationFeed) Samples() []feed.LocationSample {
	return f.path.Items()
}

// Completion returns the completion status once the job has finished.
func (f *LocationFeed) Completion() *feed.Completion {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.completion
}

func (f *LocationFeed) notify() {
	if f.OnUpdate != nil {
		f.OnUpdate()
	}
}

// newer reports whether timestamp a is after b. Unparseable values compare as
// strings.
func newer(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return a > b
	}
	return ta.After(tb)
}
