package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Entry is one ledger row.
type Entry struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	Mode       string    `json:"mode"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

var _ gateway.Recorder = (*Store)(nil)

// Filter narrows List.
type Filter struct {
	Tool  string
	Limit int
}

// Record appends one finished call.
func (s *Store) Record(ctx context.Context, rec gateway.CallRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("audit store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var message sql.NullString
	if rec.Message != "" {
		message = sql.NullString{String: rec.Message, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tool_calls (id, tool, mode, outcome, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Tool, rec.Mode, string(rec.Outcome), message, rec.Duration.Milliseconds(), createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record tool call: %w", err)
	}
	return nil
}

// List returns the most recent entries first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("audit store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, tool, mode, outcome, message, duration_ms, created_at FROM tool_calls`
	args := make([]any, 0, 2)
	if tool := strings.TrimSpace(filter.Tool); tool != "" {
		query += ` WHERE tool = ?`
		args = append(args, tool)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			message   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.Tool, &entry.Mode, &entry.Outcome, &message, &entry.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if message.Valid {
			entry.Message = message.String
		}
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool calls: %w", err)
	}

	return entries, nil
}
