package storage

import (
	"database/sql"
	"errors"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunEmpty     = "empty"
)

// Run is one row of the digest run ledger.
type Run struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chat_id"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Status      string     `json:"status"`
	Messages    int        `json:"messages"`
	Batches     int        `json:"batches"`
	Summary     string     `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunResult carries the fields written when a run ends.
type RunResult struct {
	Status   string
	Messages int
	Batches  int
	Summary  string
	Error    string
}

// CreateRun records the start of a run.
func (db *DB) CreateRun(id, chatID string, start, end time.Time) (*Run, error) {
	now := time.Now()
	_, err := db.Exec(
		`INSERT INTO digest_runs (id, chat_id, window_start, window_end, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, chatID, start, end, RunRunning, now,
	)
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:          id,
		ChatID:      chatID,
		WindowStart: start,
		WindowEnd:   end,
		Status:      RunRunning,
		StartedAt:   now,
	}, nil
}

// FinishRun records the outcome of a run.
func (db *DB) FinishRun(id string, res RunResult) error {
	result, err := db.Exec(
		`UPDATE digest_runs SET status = ?, messages = ?, batches = ?, summary = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		res.Status, res.Messages, res.Batches, res.Summary, res.Error, time.Now(), id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = "id, chat_id, window_start, window_end, status, messages, batches, summary, error, started_at, finished_at"

// GetRun returns a run by id.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow("SELECT "+runColumns+" FROM digest_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns the latest runs. A limit <= 0 returns all of them.
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM digest_runs ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.ChatID, &r.WindowStart, &r.WindowEnd, &r.Status,
		&r.Messages, &r.Batches, &r.Summary, &r.Error, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
