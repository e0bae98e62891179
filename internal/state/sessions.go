package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// OutcomeRunning marks a session whose report has not been saved yet.
const OutcomeRunning models.SessionOutcome = "running"

// SessionRecord is one row of the session history.
type SessionRecord struct {
	ID         string                `json:"id"`
	Input      string                `json:"input"`
	Framework  string                `json:"framework,omitempty"`
	Outcome    models.SessionOutcome `json:"outcome"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	TaskCount  int                   `json:"task_count"`
	Completed  int                   `json:"completed"`
	Failed     int                   `json:"failed"`
}

// EnsureSession creates a placeholder row for a running session.
func (db *DB) EnsureSession(ctx context.Context, id string, startedAt time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions (id, outcome, started_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, string(OutcomeRunning), formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// SaveReport stores a finished session: the summary row, every task result
// and every warning. Saving the same session again replaces its rows.
func (db *DB) SaveReport(ctx context.Context, input models.TaskListInput, r *models.SessionReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	counts := r.Counts()
	failed := counts[models.TaskFailed] + counts[models.TaskRejected] + counts[models.TaskCancelled]

	return db.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, input, framework, outcome, error, started_at, finished_at, task_count, completed, failed, report)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				input = excluded.input,
				framework = excluded.framework,
				outcome = excluded.outcome,
				error = excluded.error,
				started_at = excluded.started_at,
				finished_at = excluded.finished_at,
				task_count = excluded.task_count,
				completed = excluded.completed,
				failed = excluded.failed,
				report = excluded.report
		`, r.SessionID, input.RawText, input.Framework(), string(r.Outcome), r.Error,
			formatTime(r.StartedAt), formatTime(r.FinishedAt), len(r.Tasks), counts[models.TaskCompleted], failed, string(data))
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM tasks WHERE session_id = ?", r.SessionID); err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		for i, t := range r.Tasks {
			text := t.RefinedText
			if text == "" {
				text = t.RawText
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO tasks (session_id, id, position, text, category, priority_score, phase, state, reason, detail, attempts, depends_on)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.SessionID, t.ID, i, text, string(t.Category), t.PriorityScore, t.Phase, string(t.State),
				string(t.Reason), t.Detail, t.Attempts, strings.Join(t.Dependencies, ","))
			if err != nil {
				return fmt.Errorf("save task %s: %w", t.ID, err)
			}
		}

		if _, err := tx.Exec(ctx, "DELETE FROM warnings WHERE session_id = ?", r.SessionID); err != nil {
			return fmt.Errorf("clear warnings: %w", err)
		}
		for i, w := range r.Warnings {
			_, err := tx.Exec(ctx, `
				INSERT INTO warnings (session_id, seq, kind, task_ids, message) VALUES (?, ?, ?, ?, ?)
			`, r.SessionID, i, string(w.Kind), strings.Join(w.TaskIDs, ","), w.Message)
			if err != nil {
				return fmt.Errorf("save warning: %w", err)
			}
		}
		return nil
	})
}

// GetReport loads the stored report of a session.
func (db *DB) GetReport(ctx context.Context, id string) (*models.SessionReport, error) {
	var data sql.NullString
	err := db.QueryRow(ctx, "SELECT report FROM sessions WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if !data.Valid {
		return nil, fmt.Errorf("%w: %s has no saved report", ErrNotFound, id)
	}
	var r models.SessionReport
	if err := json.Unmarshal([]byte(data.String), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// ListSessions returns the most recent sessions first. A limit of zero or
// less returns every session.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `
		SELECT id, input, framework, outcome, error, started_at, finished_at, task_count, completed, failed
		FROM sessions ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var outcome, startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Input, &rec.Framework, &outcome, &rec.Error,
			&startedAt, &finishedAt, &rec.TaskCount, &rec.Completed, &rec.Failed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Outcome = models.SessionOutcome(outcome)
		rec.StartedAt, _ = parseTime(startedAt)
		rec.FinishedAt = parseNullableTime(finishedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendEvent stores one status event under the next sequence number of its
// session.
func (db *DB) AppendEvent(ctx context.Context, seq int, ev bus.StatusEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO events (session_id, seq, type, task_id, from_state, to_state, reason, phase, attempt, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.SessionID, seq, string(ev.Type), ev.TaskID, string(ev.From), string(ev.To), string(ev.Reason),
		ev.Phase, ev.Attempt, ev.Detail, formatTime(ev.Timestamp))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Events returns the recorded events of a session in order. A non-empty
// taskID restricts the result to that task.
func (db *DB) Events(ctx context.Context, sessionID, taskID string) ([]bus.StatusEvent, error) {
	query := `
		SELECT type, task_id, from_state, to_state, reason, phase, attempt, detail, at
		FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if taskID != "" {
		query += " AND task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY seq"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []bus.StatusEvent
	for rows.Next() {
		ev := bus.StatusEvent{SessionID: sessionID}
		var typ, from, to, reason, at string
		if err := rows.Scan(&typ, &ev.TaskID, &from, &to, &reason, &ev.Phase, &ev.Attempt, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = bus.EventType(typ)
		ev.From = models.TaskState(from)
		ev.To = models.TaskState(to)
		ev.Reason = models.FailureReason(reason)
		ev.Timestamp, _ = parseTime(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PurgeOldSessions deletes sessions older than the specified duration.
// Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var count int64
	err := db.Transaction(ctx, func(tx *Tx) error {
		for _, table := range []string{"events", "warnings", "tasks"} {
			_, err := tx.Exec(ctx, "DELETE FROM "+table+
				" WHERE session_id IN (SELECT id FROM sessions WHERE started_at < ?)", cutoff)
			if err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		result, err := tx.Exec(ctx, "DELETE FROM sessions WHERE started_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("purge old sessions: %w", err)
		}
		count, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return count, err
}
