package subscriber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func waitDone(t *testing.T, sub *Subscriber) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sub.Wait(ctx); err != nil {
		t.Fatalf("session did not finish: %v (state %+v)", err, sub.State())
	}
}

type delayLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayLog) record(n int, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, delay)
}

func (d *delayLog) snapshot() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

func fastOptions(baseURL string, delays *delayLog) Options {
	return Options{
		BaseURL:     baseURL,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		MaxAttempts: 4,
		OnReconnect: delays.record,
	}
}

func TestReconnectBackoffThenFailed(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	delays := &delayLog{}
	sub, _ := NewNotificationSubscriber(fastOptions(srv.URL, delays))
	sub.SetKey("ops")
	waitDone(t, sub)

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	if got := delays.snapshot(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("delays = %v want %v", got, want)
	}
	if st := sub.State(); st.Status != StatusFailed || st.ReconnectAttempt != 4 {
		t.Fatalf("unexpected state %+v", st)
	}
	if hits.Load() != 5 {
		t.Fatalf("expected 5 connection attempts, got %d", hits.Load())
	}

	// Setting the same key does not revive a failed subscriber.
	sub.SetKey("ops")
	if sub.State().Status != StatusFailed {
		t.Fatalf("same key should be a no-op")
	}
}

func TestPermanentStatusFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	delays := &delayLog{}
	sub, _ := NewNotificationSubscriber(fastOptions(srv.URL, delays))
	sub.SetKey("ops")
	waitDone(t, sub)

	if sub.State().Status != StatusFailed {
		t.Fatalf("unexpected state %+v", sub.State())
	}
	if len(delays.snapshot()) != 0 {
		t.Fatalf("no reconnect expected, got %v", delays.snapshot())
	}
}

func TestConnectedResetsAttempt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse.SetHeaders(w.Header())
		_ = sse.NewWriter(w).Send(feed.EventConnected, map[string]bool{"ok": true})
	}))
	defer srv.Close()

	delays := &delayLog{}
	opts := fastOptions(srv.URL, delays)
	opts.MaxAttempts = 2
	sub, _ := NewNotificationSubscriber(opts)
	sub.SetKey("ops")
	defer sub.Close()

	waitFor(t, func() bool { return len(delays.snapshot()) >= 5 })
	for i, d := range delays.snapshot() {
		if d != time.Millisecond {
			t.Fatalf("delay %d = %s, attempt should reset after connected", i, d)
		}
	}
	if sub.State().Status == StatusFailed {
		t.Fatalf("subscriber should keep reconnecting after successful connects")
	}
}

func TestLocationSnapshotThenLiveUntilCompleted(t *testing.T) {
	t.Parallel()

	var streams atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/j1/location", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"current":{"timestamp":"2026-01-01T00:00:02Z","lat":2,"lng":2},"path":[`+
			`{"timestamp":"2026-01-01T00:00:01Z","lat":1,"lng":1},`+
			`{"timestamp":"2026-01-01T00:00:02Z","lat":2,"lng":2}]}`)
	})
	mux.HandleFunc("/jobs/j1/location/stream", func(w http.ResponseWriter, r *http.Request) {
		streams.Add(1)
		sse.SetHeaders(w.Header())
		out := sse.NewWriter(w)
		_ = out.Send(feed.EventConnected, map[string]bool{"ok": true})
		_ = out.Send(feed.EventLocation, feed.LocationSample{Timestamp: "2026-01-01T00:00:02Z", Lat: 2, Lng: 2})
		fmt.Fprint(w, "event: location\ndata: {not json\n\n")
		_ = out.Send(feed.EventLocation, feed.LocationSample{Timestamp: "2026-01-01T00:00:03Z", Lat: 3, Lng: 3})
		_ = out.Send(feed.EventLocation, feed.LocationSample{Timestamp: "2026-01-01T00:00:00Z", Lat: 0, Lng: 0})
		_ = out.Send(feed.EventCompleted, feed.Completion{Status: "delivered"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var statuses []Status
	var mu sync.Mutex
	opts := fastOptions(srv.URL, &delayLog{})
	opts.Token = "secret"
	opts.OnStateChange = func(st State) {
		mu.Lock()
		statuses = append(statuses, st.Status)
		mu.Unlock()
	}
	sub, loc := NewLocationSubscriber(opts, 0)
	started := time.Now().UTC()
	sub.SetKey("j1")
	waitDone(t, sub)
	finished := time.Now().UTC()

	st := sub.State()
	if st.Status != StatusClosed {
		t.Fatalf("unexpected state %+v", st)
	}
	seen, err := time.Parse(time.RFC3339Nano, st.LastEventTimestamp)
	if err != nil {
		t.Fatalf("last event timestamp %q: %v", st.LastEventTimestamp, err)
	}
	// Receipt time, not the 2026-01-01 payload timestamps.
	if seen.Before(started) || seen.After(finished) {
		t.Fatalf("last event timestamp %s outside [%s, %s]", seen, started, finished)
	}
	if streams.Load() != 1 {
		t.Fatalf("completed feed must not reconnect, got %d streams", streams.Load())
	}
	var got []string
	for _, s := range loc.Samples() {
		got = append(got, s.Timestamp[17:19])
	}
	if strings.Join(got, ",") != "01,02,03,00" {
		t.Fatalf("path = %v", got)
	}
	if cur := loc.Current(); cur == nil || cur.Timestamp != "2026-01-01T00:00:03Z" {
		t.Fatalf("current should track the newest sample, got %+v", cur)
	}
	if c := loc.Completion(); c == nil || c.Status != "delivered" {
		t.Fatalf("unexpected completion %+v", c)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusIdle, StatusConnecting, StatusOpen, StatusClosed}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Fatalf("statuses = %v want %v", statuses, want)
	}
}

func TestMissingSnapshotIsNotAnError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/j2/location/stream", func(w http.ResponseWriter, r *http.Request) {
		out := sse.NewWriter(w)
		_ = out.Send(feed.EventConnected, map[string]bool{"ok": true})
		_ = out.Send(feed.EventCompleted, feed.Completion{Status: "cancelled"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sub, loc := NewLocationSubscriber(fastOptions(srv.URL, &delayLog{}), 0)
	sub.SetKey("j2")
	waitDone(t, sub)

	if sub.State().Status != StatusClosed || loc.Current() != nil || len(loc.Samples()) != 0 {
		t.Fatalf("unexpected result state=%+v current=%+v", sub.State(), loc.Current())
	}
}

// countingTransport flags a request that starts while another stream body is
// still open.
type countingTransport struct {
	open       atomic.Int32
	overlapped atomic.Bool
}

type countedBody struct {
	body   io.ReadCloser
	closed sync.Once
	t      *countingTransport
}

func (b *countedBody) Read(p []byte) (int, error) { return b.body.Read(p) }

func (b *countedBody) Close() error {
	b.closed.Do(func() { b.t.open.Add(-1) })
	return b.body.Close()
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.open.Load() > 0 {
		c.overlapped.Store(true)
	}
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.open.Add(1)
	resp.Body = &countedBody{body: resp.Body, t: c}
	return resp, nil
}

func TestSetKeyTearsDownPreviousSession(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	opened := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recipient := r.URL.Query().Get("recipient")
		mu.Lock()
		opened[recipient]++
		mu.Unlock()
		out := sse.NewWriter(w)
		_ = out.Send(feed.EventConnected, map[string]bool{"ok": true})
		_ = out.Send(feed.EventNotification, feed.Notification{ID: "n-" + recipient, Recipient: recipient})
		<-r.Context().Done()
	}))
	defer srv.Close()

	transport := &countingTransport{}
	opts := fastOptions(srv.URL, &delayLog{})
	opts.HTTPClient = &http.Client{Transport: transport}
	sub, notes := NewNotificationSubscriber(opts)

	sub.SetKey("alice")
	waitFor(t, func() bool { return len(notes.Items()) == 1 })
	sub.SetKey("bob")
	waitFor(t, func() bool { return len(notes.Items()) == 1 && notes.Items()[0].ID == "n-bob" })
	if sub.Key() != "bob" || sub.State().Status != StatusOpen {
		t.Fatalf("unexpected key/state %s %+v", sub.Key(), sub.State())
	}

	sub.Close()
	if transport.overlapped.Load() {
		t.Fatalf("two streams were open at the same time")
	}
	if transport.open.Load() != 0 {
		t.Fatalf("stream left open after Close")
	}
	if sub.State().Status != StatusIdle || len(notes.Items()) != 0 {
		t.Fatalf("close should reset state, got %+v", sub.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if opened["alice"] != 1 || opened["bob"] != 1 {
		t.Fatalf("unexpected connections %v", opened)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	sub, _ := NewNotificationSubscriber(Options{BaseURL: srv.URL, BaseDelay: time.Hour, MaxDelay: time.Hour})
	sub.SetKey("ops")
	waitFor(t, func() bool { return sub.State().Status == StatusReconnecting })

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked on the reconnect timer")
	}
	time.Sleep(20 * time.Millisecond)
	if hits.Load() != 1 || sub.State().Status != StatusIdle {
		t.Fatalf("hits=%d state=%+v", hits.Load(), sub.State())
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := sse.NewWriter(w)
		_ = out.Send(feed.EventConnected, map[string]bool{"ok": true})
		for _, id := range []string{"a", "b", "a", "c"} {
			_ = out.Send(feed.EventNotification, feed.Notification{ID: id, Title: id})
		}
		_ = out.Send(feed.EventNotification, map[string]string{"title": "no id"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	var seen atomic.Int32
	sub, notes := NewNotificationSubscriber(fastOptions(srv.URL, &delayLog{}))
	notes.OnNotification = func(feed.Notification) { seen.Add(1) }
	sub.SetKey("ops")
	defer sub.Close()

	waitFor(t, func() bool { return seen.Load() == 3 })
	var ids []string
	for _, n := range notes.Items() {
		ids = append(ids, n.ID)
	}
	if strings.Join(ids, ",") != "c,b,a" {
		t.Fatalf("items = %v", ids)
	}
}
