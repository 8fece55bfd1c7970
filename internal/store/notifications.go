package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
)

// InsertNotification stores n. ID, recipient, title and created time are required.
func (s *Store) InsertNotification(ctx context.Context, n feed.Notification) error {
	if n.ID == "" || n.Recipient == "" || n.Title == "" || n.CreatedAt == "" {
		return errors.New("notification requires id, recipient, title and createdAt")
	}
	_, err := s.exec(ctx, `INSERT INTO notifications (id, recipient, kind, title, body, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Recipient, nullString(n.Kind), n.Title, nullString(n.Body), nullString(string(n.Payload)), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
	return nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipient string, limit int) ([]feed.Notification, error) {
	rows, err := s.query(ctx, `SELECT id, recipient, kind, title, body, payload, created_at FROM notifications
		WHERE recipient = ? ORDER BY created_at DESC, id DESC`+limitClause(limit), recipient)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", recipient, err)
	}
	defer rows.Close()

	var out []feed.Notification
	for rows.Next() {
		var (
			n                   feed.Notification
			kind, body, payload sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &kind, &n.Title, &body, &payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Kind = kind.String
		n.Body = body.String
		if payload.Valid && json.Valid([]byte(payload.String)) {
			n.Payload = json.RawMessage(payload.String)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
