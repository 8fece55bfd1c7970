// Package relay turns an upstream completion stream into an outbound event
// stream with exactly one terminal event per session.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/metrics"
	"github.com/oremus-labs/ol-advisor-relay/internal/upstream"
)

// DefaultTimeout bounds a session from its start.
const DefaultTimeout = 60 * time.Second

// Outcome classifies how a session ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeError     Outcome = "error"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Streamer opens upstream completion streams.
type Streamer interface {
	Stream(context.Context, upstream.Request) (*upstream.Stream, error)
}

// Sink receives framed outbound events.
type Sink interface {
	Send(name string, data any) error
}

// History persists one record per finished session.
type History interface {
	RecordRelaySession(ctx context.Context, rec Record) error
}

// Record summarises a finished session.
type Record struct {
	ID       string
	Model    string
	Scope    string
	Outcome  Outcome
	Deltas   int
	Error    string
	Started  time.Time
	Duration time.Duration
}

// Request is one relay session.
type Request struct {
	ID         string
	Scope      string
	Upstream   upstream.Request
	Prompt     string
	EchoPrompt bool
}

// Result reports what a session wrote.
type Result struct {
	Outcome  Outcome
	Deltas   int
	Err      error
	Duration time.Duration
}

// Options configures a Relay.
type Options struct {
	Upstream Streamer
	Timeout  time.Duration
	History  History
	Logger   *log.Logger
}

// Relay drives upstream streams onto outbound sinks. It holds no per-session
// state and may serve concurrent sessions.
type Relay struct {
	upstream Streamer
	timeout  time.Duration
	history  History
	logger   *log.Logger
}

// New creates a Relay.
func New(opts Options) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Relay{
		upstream: opts.Upstream,
		timeout:  opts.Timeout,
		history:  opts.History,
		logger:   opts.Logger,
	}
}

type deltaPayload struct {
	Text string `json:"text"`
}

type okPayload struct {
	OK bool `json:"ok"`
}

type promptPayload struct {
	Prompt string `json:"prompt"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// session guards the terminal-event contract for one run.
type session struct {
	sink       Sink
	terminated bool
	sinkErr    error
	deltas     int
}

func (s *session) send(name string, data any) bool {
	if s.terminated || s.sinkErr != nil {
		return false
	}
	if err := s.sink.Send(name, data); err != nil {
		s.sinkErr = err
		return false
	}
	return true
}

func (s *session) delta(text string) bool {
	if !s.send(feed.EventDelta, deltaPayload{Text: text}) {
		return false
	}
	s.deltas++
	return true
}

// terminate writes the single terminal event. Later calls are no-ops.
func (s *session) terminate(name string, data any) {
	if s.terminated {
		return
	}
	s.terminated = true
	if s.sinkErr != nil {
		return
	}
	if err := s.sink.Send(name, data); err != nil {
		s.sinkErr = err
	}
}

// Run executes one session against sink. It always attempts exactly one
// terminal event and never returns before the upstream request is released.
func (r *Relay) Run(parent context.Context, sink Sink, req Request) (res Result) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	s := &session{sink: sink}
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("relay: panic: %v", p)
			res.Outcome = OutcomeError
			s.terminate(feed.EventServerError, errorPayload{Message: "internal relay error"})
		}
		res.Deltas = s.deltas
		res.Duration = time.Since(start)
		r.finish(req, res, start)
	}()

	s.send(feed.EventConnected, okPayload{OK: true})
	if req.EchoPrompt && req.Prompt != "" {
		s.send(feed.EventPrompt, promptPayload{Prompt: req.Prompt})
	}

	err := r.pump(ctx, s, req.Upstream)
	outcome := classify(ctx, parent, err, s.sinkErr)
	res.Outcome = outcome
	res.Err = err

	switch outcome {
	case OutcomeDone:
		s.terminate(feed.EventDone, okPayload{OK: true})
	case OutcomeTimeout:
		s.terminate(feed.EventServerError, errorPayload{Message: fmt.Sprintf("upstream timed out after %s", r.timeout)})
	case OutcomeCancelled:
		s.terminate(feed.EventServerError, errorPayload{Message: "request cancelled"})
	default:
		s.terminate(feed.EventServerError, errorPayload{Message: err.Error()})
	}
	return res
}

// pump drives the upstream sequence until it ends, fails or the sink breaks.
func (r *Relay) pump(ctx context.Context, s *session, req upstream.Request) error {
	if r.upstream == nil {
		return errors.New("relay: upstream not configured")
	}
	if s.sinkErr != nil {
		return s.sinkErr
	}
	stream, err := r.upstream.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk.Text == "" {
			continue
		}
		if !s.delta(chunk.Text) {
			return s.sinkErr
		}
		if chunk.IsFinal {
			return nil
		}
	}
}

func classify(ctx, parent context.Context, err, sinkErr error) Outcome {
	switch {
	case err == nil:
		return OutcomeDone
	case parent.Err() != nil || (sinkErr != nil && errors.Is(err, sinkErr)):
		return OutcomeCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

func (r *Relay) finish(req Request, res Result, start time.Time) {
	metrics.ObserveRelaySession(string(res.Outcome), res.Deltas, res.Duration)

	fields := map[string]interface{}{
		"sessionId": req.ID,
		"model":     req.Upstream.Model,
		"scope":     req.Scope,
		"outcome":   string(res.Outcome),
		"deltas":    res.Deltas,
		"duration":  res.Duration.String(),
	}
	if res.Outcome == OutcomeError {
		metrics.UpstreamError(errorKind(res.Err))
		logutil.Error("relay_session_failed", res.Err, fields)
	} else {
		logutil.Info("relay_session_finished", fields)
	}

	if r.history == nil {
		return
	}
	rec := Record{
		ID:       req.ID,
		Model:    req.Upstream.Model,
		Scope:    req.Scope,
		Outcome:  res.Outcome,
		Deltas:   res.Deltas,
		Started:  start.UTC(),
		Duration: res.Duration,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.history.RecordRelaySession(ctx, rec); err != nil {
		r.logger.Printf("relay: failed to record session %s: %v", req.ID, err)
	}
}

func errorKind(err error) string {
	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, upstream.ErrNoBody):
		return "no_body"
	default:
		return "transport"
	}
}
