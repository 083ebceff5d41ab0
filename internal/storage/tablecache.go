package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fluve/internal/frame"
)

// TableCache keeps raw survey exports between runs: read if present,
// written after a fresh fetch. Entries never expire; Clear empties it.
type TableCache struct {
	db *DB
}

// NewTableCache creates a new TableCache.
func NewTableCache(db *DB) *TableCache {
	return &TableCache{db: db}
}

// CacheEntry describes one cached table.
type CacheEntry struct {
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Get returns the cached table and when it was fetched. ok is false on a miss.
func (c *TableCache) Get(name string) (*frame.Table, time.Time, bool, error) {
	var (
		payload   string
		fetchedAt time.Time
	)
	err := c.db.conn.QueryRow(
		`SELECT payload, fetched_at FROM table_cache WHERE name = ?`, name,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("read cache %s: %w", name, err)
	}

	t := &frame.Table{}
	if err := json.Unmarshal([]byte(payload), t); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode cache %s: %w", name, err)
	}
	return t, fetchedAt, true, nil
}

// Put stores t under name, replacing any previous entry.
func (c *TableCache) Put(name string, t *frame.Table) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", name, err)
	}
	_, err = c.db.conn.Exec(
		`INSERT INTO table_cache (name, payload, row_count, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload=excluded.payload, row_count=excluded.row_count, fetched_at=excluded.fetched_at`,
		name, string(payload), t.Len(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write cache %s: %w", name, err)
	}
	return nil
}

// List returns the cached entries by name.
func (c *TableCache) List() ([]CacheEntry, error) {
	rows, err := c.db.conn.Query(`SELECT name, row_count, fetched_at FROM table_cache ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.Name, &e.Rows, &e.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear drops every cached table and reports how many were removed.
func (c *TableCache) Clear() (int, error) {
	res, err := c.db.conn.Exec(`DELETE FROM table_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
