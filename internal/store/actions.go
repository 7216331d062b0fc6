package store

import (
	"database/sql"
	"errors"
)

// Action is one journaled outbound action. Times are unix milliseconds.
type Action struct {
	ID             string
	Kind           string
	ConversationID string
	MessageID      string
	Content        string
	Emitted        bool
	Durability     string
	Error          string
	CreatedAt      int64
	UpdatedAt      int64
}

// Failed reports whether the action hit an emission or durability error.
func (a Action) Failed() bool {
	return a.Durability == "failed" || a.Error != ""
}

// RecordAction inserts an action or advances an existing one. A pending
// report never overwrites a settled one.
func (db *DB) RecordAction(a *Action) error {
	_, err := db.Exec(`
		INSERT INTO actions (id, kind, conversation_id, message_id, content, emitted, durability, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			emitted = excluded.emitted,
			durability = excluded.durability,
			error = excluded.error,
			updated_at = excluded.updated_at
		WHERE actions.durability = 'pending' OR excluded.durability != 'pending'`,
		a.ID, a.Kind, a.ConversationID, a.MessageID, a.Content, a.Emitted, a.Durability, a.Error, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAction returns an action by id, or nil when it does not exist.
func (db *DB) GetAction(id string) (*Action, error) {
	row := db.QueryRow(`
		SELECT id, kind, conversation_id, message_id, content, emitted, durability, error, created_at, updated_at
		FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListActions returns the newest actions first. With failedOnly, only actions
// that hit an error are returned.
func (db *DB) ListActions(failedOnly bool, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, kind, conversation_id, message_id, content, emitted, durability, error, created_at, updated_at
		FROM actions`
	if failedOnly {
		query += ` WHERE durability = 'failed' OR error != ''`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(s scanner) (*Action, error) {
	var a Action
	if err := s.Scan(&a.ID, &a.Kind, &a.ConversationID, &a.MessageID, &a.Content,
		&a.Emitted, &a.Durability, &a.Error, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
