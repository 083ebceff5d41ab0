package dbclient

import (
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// newSQLiteConnector opens a SQLite file in WAL mode with a busy timeout.
// A single connection keeps writers from tripping over each other.
func newSQLiteConnector(cfg ConnConfig, log *zap.Logger) (*sqlConnector, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sqlite: host must be a file path")
	}
	dsn := cfg.Host + "?_journal_mode=WAL&_busy_timeout=5000"
	c, err := newSQLConnector("sqlite", dsn, log)
	if err != nil {
		return nil, err
	}
	c.db.SetMaxOpenConns(1)
	return c, nil
}
