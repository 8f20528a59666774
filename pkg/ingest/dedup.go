package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DedupStore remembers which notifications have already been processed.
type DedupStore interface {
	// Seen reports whether a notification with this hash was recorded.
	Seen(ctx context.Context, hash string) (bool, error)

	// Record persists the notification. Recording the same hash twice
	// is a no-op at the store level; Seen gates processing.
	Record(ctx context.Context, n Notification) error

	// ByTask returns the recorded notifications for a task, in arrival
	// order.
	ByTask(ctx context.Context, taskID int64) ([]Notification, error)
}

// SQLDedupStore implements DedupStore using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLDedupStore struct {
	db *sql.DB
}

func NewSQLDedupStore(db *sql.DB) *SQLDedupStore {
	return &SQLDedupStore{db: db}
}

const dedupSchema = `
CREATE TABLE IF NOT EXISTS notifications (
	hash TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	task_id BIGINT NOT NULL,
	sequence BIGINT NOT NULL,
	source_id TEXT NOT NULL,
	payload TEXT,
	recorded_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notifications(task_id);
CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications(type);
`

func (s *SQLDedupStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, dedupSchema)
	return err
}

func (s *SQLDedupStore) Seen(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM notifications WHERE hash = $1)`
	if err := s.db.QueryRowContext(ctx, query, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (s *SQLDedupStore) Record(ctx context.Context, n Notification) error {
	payloadJSON, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO notifications (hash, type, task_id, sequence, source_id, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		n.Hash, n.Type, n.TaskID, n.Sequence, n.SourceID, string(payloadJSON), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

func (s *SQLDedupStore) ByTask(ctx context.Context, taskID int64) ([]Notification, error) {
	query := `
		SELECT hash, type, task_id, sequence, source_id, payload
		FROM notifications
		WHERE task_id = $1
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		var payloadJSON sql.NullString
		if err := rows.Scan(&n.Hash, &n.Type, &n.TaskID, &n.Sequence, &n.SourceID, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &n.Payload); err != nil {
				return nil, fmt.Errorf("corrupt payload: %w", err)
			}
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MemoryDedupStore implements DedupStore in memory.
// Thread-safe via RWMutex.
type MemoryDedupStore struct {
	mu     sync.RWMutex
	byHash map[string]Notification
	order  []string
}

func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{byHash: make(map[string]Notification)}
}

func (s *MemoryDedupStore) Seen(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byHash[hash]
	return ok, nil
}

func (s *MemoryDedupStore) Record(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[n.Hash]; ok {
		return nil
	}
	s.byHash[n.Hash] = n
	s.order = append(s.order, n.Hash)
	return nil
}

func (s *MemoryDedupStore) ByTask(ctx context.Context, taskID int64) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for _, h := range s.order {
		if n := s.byHash[h]; n.TaskID == taskID {
			out = append(out, n)
		}
	}
	return out, nil
}
