package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ansato/Miharu/common/trace"
)

// ActionAudit is one dispatched monitoring action as recorded in the
// audit log.
type ActionAudit struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	UserID       string
	Author       string
	Command      string
	Filter       string
	Objects      int
	Result       string // "success" or "error"
	ErrorMessage string
}

// WriteAction records a dispatched action in the audit log. The trace ID is
// taken from the context when the entry carries none, so the audit row can be
// matched with the log lines of the message that triggered the action. A
// fresh ID is generated as a last resort.
func (s *Store) WriteAction(ctx context.Context, entry ActionAudit) error {
	if entry.TraceID == "" {
		entry.TraceID = trace.FromContext(ctx)
	}
	if entry.TraceID == "" {
		entry.TraceID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, trace_id, user_id, author, command, filter, objects, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.TraceID, entry.UserID, entry.Author, entry.Command, entry.Filter, entry.Objects, entry.Result, errMsg)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

// GetActions returns the most recent audit entries, newest first.
func (s *Store) GetActions(ctx context.Context, limit int) ([]ActionAudit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, trace_id, user_id, author, command, filter, objects, result, error_message
		FROM audit_log
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// GetActionsByUser returns the most recent audit entries for one user,
// newest first.
func (s *Store) GetActionsByUser(ctx context.Context, userID string, limit int) ([]ActionAudit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, trace_id, user_id, author, command, filter, objects, result, error_message
		FROM audit_log
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]ActionAudit, error) {
	var entries []ActionAudit
	for rows.Next() {
		var entry ActionAudit
		var errMsg sql.NullString
		err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.TraceID, &entry.UserID, &entry.Author,
			&entry.Command, &entry.Filter, &entry.Objects, &entry.Result, &errMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.ErrorMessage = errMsg.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
