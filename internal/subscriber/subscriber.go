// Package subscriber keeps a long-lived event-stream subscription alive for a
// single key, reconnecting with exponential backoff.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// errStreamEnded reports a stream that closed without a completion event.
var errStreamEnded = errors.New("subscriber: stream ended")

// Handler interprets the events of one feed.
type Handler interface {
	// Path returns the stream path for key, relative to the base URL.
	Path(key string) string
	// HandleEvent applies one named event. done reports a completion event;
	// an error marks the payload as dropped.
	HandleEvent(msg sse.Message) (done bool, err error)
	// Reset clears state held for the previous key.
	Reset()
}

// Snapshotter is implemented by handlers that load initial state once per key
// before the live stream opens.
type Snapshotter interface {
	Snapshot(ctx context.Context, fetch Fetcher, key string) error
}

// Fetcher performs plain JSON reads against the feed server.
type Fetcher interface {
	// GetJSON decodes the 2xx body at path into v. found is false on 404.
	GetJSON(ctx context.Context, path string, v any) (found bool, err error)
}

// StatusError reports a non-2xx answer from the feed server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("subscriber: status %d", e.Code)
	}
	return fmt.Sprintf("subscriber: status %d: %s", e.Code, e.Body)
}

// permanent reports errors that a reconnect cannot fix.
func permanent(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch {
	case statusErr.Code == http.StatusRequestTimeout, statusErr.Code == http.StatusTooManyRequests:
		return false
	case statusErr.Code >= 400 && statusErr.Code < 500:
		return true
	default:
		return false
	}
}

// Options configures a Subscriber.
type Options struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnStateChange is called on the session goroutine after every
	// transition. It must not call SetKey or Close.
	OnStateChange func(State)
	// OnReconnect is called before waiting delay for reconnect attempt n.
	OnReconnect func(n int, delay time.Duration)
}

// Subscriber attaches one Handler to the stream of at most one key at a time.
type Subscriber struct {
	opts    Options
	baseURL string
	client  *http.Client
	handler Handler

	// lifecycle serialises SetKey calls.
	lifecycle sync.Mutex
	key       string
	cancel    context.CancelFunc
	done      chan struct{}

	mu    sync.RWMutex
	state State
}

// New creates an idle subscriber.
func New(opts Options, handler Handler) *Subscriber {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Subscriber{
		opts:    opts,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		client:  client,
		handler: handler,
	}
}

// State returns the current state.
func (s *Subscriber) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Key returns the active key, or "" when idle.
func (s *Subscriber) Key() string {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.key
}

// SetKey switches the subscription to key. The previous session, including
// any pending reconnect timer, is torn down before SetKey returns. An empty
// key leaves the subscriber idle; setting the active key again is a no-op.
func (s *Subscriber) SetKey(key string) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if key == s.key {
		return
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel, s.done = nil, nil
	}
	s.key = key
	s.handler.Reset()
	s.apply(TriggerTeardown, func(st *State) {
		st.ReconnectAttempt = 0
		st.LastEventTimestamp = ""
	})
	if key == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.apply(TriggerKeySet, nil)
	go func() {
		defer close(done)
		s.run(ctx, key)
	}()
}

// Close tears down any active session.
func (s *Subscriber) Close() {
	s.SetKey("")
}

// Wait blocks until the active session ends on its own (Closed or Failed) or
// ctx is done.
func (s *Subscriber) Wait(ctx context.Context) error {
	s.lifecycle.Lock()
	done := s.done
	s.lifecycle.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscriber) apply(t Trigger, mutate func(*State)) bool {
	s.mu.Lock()
	next, err := s.state.Status.Next(t)
	if err != nil {
		s.mu.Unlock()
		logutil.Debug("subscriber_transition_rejected", map[string]interface{}{"error": err.Error()})
		return false
	}
	s.state.Status = next
	if mutate != nil {
		mutate(&s.state)
	}
	snapshot := s.state
	s.mu.Unlock()

	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(snapshot)
	}
	return true
}

func (s *Subscriber) run(ctx context.Context, key string) {
	if snap, ok := s.handler.(Snapshotter); ok {
		if err := snap.Snapshot(ctx, s, key); err != nil && ctx.Err() == nil {
			logutil.Warn("subscriber_snapshot_failed", err, map[string]interface{}{"key": key})
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		completed, err := s.stream(ctx, key)
		if ctx.Err() != nil {
			return
		}
		if completed {
			s.apply(TriggerCompleted, nil)
			return
		}

		attempt := s.State().ReconnectAttempt
		if permanent(err) || attempt >= s.opts.MaxAttempts {
			logutil.Warn("subscriber_failed", err, map[string]interface{}{"key": key, "attempts": attempt})
			s.apply(TriggerGiveUp, nil)
			return
		}

		delay := Backoff(attempt, s.opts.BaseDelay, s.opts.MaxDelay)
		s.apply(TriggerTransportError, func(st *State) { st.ReconnectAttempt = attempt + 1 })
		logutil.Debug("subscriber_reconnect_scheduled", map[string]interface{}{
			"key":     key,
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   errString(err),
		})
		if s.opts.OnReconnect != nil {
			s.opts.OnReconnect(attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.apply(TriggerRetryDue, nil)
	}
}

// stream holds one connection open until it fails or a completion arrives.
func (s *Subscriber) stream(ctx context.Context, key string) (bool, error) {
	req, err := s.newRequest(ctx, s.handler.Path(key))
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", sse.ContentType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, statusError(resp)
	}

	scanner := sse.NewScanner(resp.Body)
	for scanner.Next() {
		msg := scanner.Message()
		s.mu.Lock()
		s.state.LastEventTimestamp = time.Now().UTC().Format(time.RFC3339Nano)
		s.mu.Unlock()

		if msg.Event == feed.EventConnected {
			s.apply(TriggerOpened, func(st *State) { st.ReconnectAttempt = 0 })
			continue
		}
		done, err := s.handler.HandleEvent(msg)
		if err != nil {
			logutil.Warn("subscriber_payload_dropped", err, map[string]interface{}{
				"key":   key,
				"event": msg.Event,
			})
			continue
		}
		if done {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, errStreamEnded
}

// GetJSON implements Fetcher.
func (s *Subscriber) GetJSON(ctx context.Context, path string, v any) (bool, error) {
	req, err := s.newRequest(ctx, path)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("subscriber: decode %s: %w", path, err)
	}
	return true, nil
}

func (s *Subscriber) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if s.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
