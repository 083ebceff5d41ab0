package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunLog is a historical record of one pipeline run.
type RunLog struct {
	ID           string    `json:"id"`
	Trigger      string    `json:"trigger"` // "manual" | "schedule" | "file_watch"
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Status       string    `json:"status"` // "success" | "error"
	StaffingRows int       `json:"staffingRows"`
	RecordRows   int       `json:"recordRows"`
	FailedChecks []string  `json:"failedChecks"`
	Error        string    `json:"error,omitempty"`
}

// RunLogStore persists run history.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// Create stores l, assigning an ID when it has none.
func (s *RunLogStore) Create(l *RunLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	failed, _ := json.Marshal(l.FailedChecks)
	if l.FailedChecks == nil {
		failed = []byte("[]")
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO run_logs (id, trigger_type, started_at, finished_at, status, staffing_rows, record_rows, failed_checks, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Trigger, l.StartedAt, l.FinishedAt, l.Status, l.StaffingRows, l.RecordRows, string(failed), l.Error,
	)
	return err
}

// List returns the most recent runs first.
func (s *RunLogStore) List(limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, trigger_type, started_at, finished_at, status, staffing_rows, record_rows, failed_checks, error
		 FROM run_logs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var (
			l      RunLog
			failed string
		)
		if err := rows.Scan(&l.ID, &l.Trigger, &l.StartedAt, &l.FinishedAt, &l.Status, &l.StaffingRows, &l.RecordRows, &failed, &l.Error); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(failed), &l.FailedChecks)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
