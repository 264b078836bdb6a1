// Package journal records connection lifecycle and subscription outcomes
// in the journal_events table, and serves them back for the API.
//
// Message payloads are never journaled; only EventMessage is skipped.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one journaled lifecycle event.
type Entry struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Topic      string    `json:"topic,omitempty"`
	Address    string    `json:"address,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Kind   string // optional: exact event kind (e.g. "subscription_failed")
	Topic  string // optional: exact topic
	Limit  int    // default 50, max 500
	Offset int
}

// ListResult contains one page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the journal operations used by the daemon and API.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository on an already-migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// FromEvent converts a client event into a journal entry.
// It reports false for events that are not journaled (messages).
func FromEvent(ev pubsub.Event) (Entry, bool) {
	if ev.Kind == pubsub.EventMessage {
		return Entry{}, false
	}
	e := Entry{
		Kind:       ev.Kind.String(),
		Topic:      ev.Topic,
		Address:    ev.Address,
		OccurredAt: ev.At,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e, true
}

// Create inserts entry and sets its ID. OccurredAt defaults to now.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.Kind == "" {
		return ErrInvalidEntry
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	entry.OccurredAt = entry.OccurredAt.UTC()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_events (occurred_at, kind, topic, address, error)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.OccurredAt.Format(time.RFC3339Nano),
		entry.Kind, entry.Topic, entry.Address, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading journal entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM journal_events " + where //nolint:gosec // WHERE built from fixed, parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := "SELECT id, occurred_at, kind, topic, address, error FROM journal_events " + //nolint:gosec // as above
		where + " ORDER BY id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var occurredAt string
		if err := rows.Scan(&e.ID, &occurredAt, &e.Kind, &e.Topic, &e.Address, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", occurredAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
