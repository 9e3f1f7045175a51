// Package history keeps a durable log of launch attempts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the result of a launch attempt.
type Status string

const (
	StatusOpened  Status = "opened"  // builtin handler ran
	StatusSpawned Status = "spawned" // sandboxed process started
	StatusFailed  Status = "failed"
)

// Entry is one launch attempt.
type Entry struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	Route     string    `json:"route"`
	Target    string    `json:"target"`
	Status    Status    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage is a per-app launch count.
type Usage struct {
	AppID    string    `json:"app_id"`
	Launches int       `json:"launches"`
	Failures int       `json:"failures"`
	LastAt   time.Time `json:"last_at"`
}

// Store persists entries in the launch_log table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts e and returns its generated ID. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.AppID == "" {
		return "", fmt.Errorf("app_id is empty")
	}
	if e.Status == "" {
		return "", fmt.Errorf("status is empty")
	}
	if e.Source == "" {
		e.Source = "unknown"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	id := uuid.NewString()
	var (
		pid    any
		errMsg any
	)
	if e.PID > 0 {
		pid = e.PID
	}
	if e.Error != "" {
		errMsg = e.Error
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO launch_log(id, app_id, route, target, status, pid, error, source, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, e.AppID, e.Route, e.Target, string(e.Status), pid, errMsg, e.Source, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("record launch: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, app_id, route, target, status, pid, error, source, created_at
FROM launch_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query launch log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			status     string
			pid        sql.NullInt64
			errMsg     sql.NullString
			createdAtS string
		)
		if err := rows.Scan(&e.ID, &e.AppID, &e.Route, &e.Target, &status, &pid, &errMsg, &e.Source, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan launch log: %w", err)
		}
		e.Status = Status(status)
		if pid.Valid {
			e.PID = int(pid.Int64)
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launch log: %w", err)
	}
	return out, nil
}

// Usage aggregates launches per app, most launched first.
func (s *Store) Usage(ctx context.Context) ([]Usage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT app_id,
       SUM(CASE WHEN status != ? THEN 1 ELSE 0 END) AS launches,
       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failures,
       MAX(created_at) AS last_at
FROM launch_log
GROUP BY app_id
ORDER BY launches DESC, app_id ASC;
`, string(StatusFailed), string(StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []Usage
	for rows.Next() {
		var (
			u     Usage
			lastS string
		)
		if err := rows.Scan(&u.AppID, &u.Launches, &u.Failures, &lastS); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, lastS); err == nil {
			u.LastAt = t
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage: %w", err)
	}
	return out, nil
}

// Prune deletes entries older than retention and returns how many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM launch_log WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune launch log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
