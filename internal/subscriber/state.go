package subscriber

import (
	"fmt"
	"time"
)

// Status is the connection status of a subscriber.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusReconnecting
	StatusFailed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Trigger is an input to the status machine.
type Trigger int

const (
	TriggerKeySet Trigger = iota
	TriggerOpened
	TriggerTransportError
	TriggerRetryDue
	TriggerGiveUp
	TriggerCompleted
	TriggerTeardown
)

func (t Trigger) String() string {
	switch t {
	case TriggerKeySet:
		return "key_set"
	case TriggerOpened:
		return "opened"
	case TriggerTransportError:
		return "transport_error"
	case TriggerRetryDue:
		return "retry_due"
	case TriggerGiveUp:
		return "give_up"
	case TriggerCompleted:
		return "completed"
	case TriggerTeardown:
		return "teardown"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Teardown is accepted from every status and is handled separately.
var transitions = map[Status]map[Trigger]Status{
	StatusIdle: {
		TriggerKeySet: StatusConnecting,
	},
	StatusConnecting: {
		TriggerOpened:         StatusOpen,
		TriggerTransportError: StatusReconnecting,
		TriggerGiveUp:         StatusFailed,
		TriggerCompleted:      StatusClosed,
	},
	StatusOpen: {
		TriggerOpened:         StatusOpen,
		TriggerTransportError: StatusReconnecting,
		TriggerGiveUp:         StatusFailed,
		TriggerCompleted:      StatusClosed,
	},
	StatusReconnecting: {
		TriggerRetryDue: StatusConnecting,
		TriggerGiveUp:   StatusFailed,
	},
}

// Next returns the status reached from s on t. Failed and Closed only leave
// through Teardown.
func (s Status) Next(t Trigger) (Status, error) {
	if t == TriggerTeardown {
		return StatusIdle, nil
	}
	if next, ok := transitions[s][t]; ok {
		return next, nil
	}
	return s, fmt.Errorf("subscriber: invalid transition %s on %s", s, t)
}

// State is a point-in-time view of a subscriber.
type State struct {
	Status             Status
	ReconnectAttempt   int
	// LastEventTimestamp is when the subscriber last received an event,
	// UTC in RFC 3339 with nanoseconds. It is not taken from the payload.
	LastEventTimestamp string
}

// Backoff returns the delay before reconnect attempt n+1 after n consecutive
// failures: min(base * 2^n, max).
func Backoff(n int, base, max time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
