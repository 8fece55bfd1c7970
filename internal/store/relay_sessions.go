package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/relay"
)

// RelaySession is the persisted summary of one relay session.
type RelaySession struct {
	ID         string `json:"id"`
	Model      string `json:"model,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Outcome    string `json:"outcome"`
	Deltas     int    `json:"deltas"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"startedAt"`
	DurationMS int64  `json:"durationMs"`
}

// RecordRelaySession implements relay.History.
func (s *Store) RecordRelaySession(ctx context.Context, rec relay.Record) error {
	_, err := s.exec(ctx, `INSERT INTO relay_sessions (id, model, scope, outcome, deltas, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nullString(rec.Model), nullString(rec.Scope), string(rec.Outcome), rec.Deltas,
		nullString(rec.Error), feed.FormatTime(rec.Started), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record relay session %s: %w", rec.ID, err)
	}
	return nil
}

// ListRelaySessions returns the newest sessions first.
func (s *Store) ListRelaySessions(ctx context.Context, limit int) ([]RelaySession, error) {
	rows, err := s.query(ctx, `SELECT id, model, scope, outcome, deltas, error, started_at, duration_ms
		FROM relay_sessions ORDER BY started_at DESC`+limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("list relay sessions: %w", err)
	}
	defer rows.Close()

	var out []RelaySession
	for rows.Next() {
		var (
			rs                   RelaySession
			model, scope, errMsg sql.NullString
		)
		if err := rows.Scan(&rs.ID, &model, &scope, &rs.Outcome, &rs.Deltas, &errMsg, &rs.StartedAt, &rs.DurationMS); err != nil {
			return nil, err
		}
		rs.Model = model.String
		rs.Scope = scope.String
		rs.Error = errMsg.String
		out = append(out, rs)
	}
	return out, rows.Err()
}
