package dbclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fluve/internal/frame"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverMongoDB  Driver = "mongodb"
)

// ConnConfig describes how to reach a database. Passwords are never part of
// the config; they come from the secret store.
type ConnConfig struct {
	Driver   Driver            `yaml:"driver" json:"driver"`
	Host     string            `yaml:"host" json:"host"` // file path for sqlite, URI allowed for mongodb
	Port     int               `yaml:"port" json:"port"`
	Database string            `yaml:"database" json:"database"`
	Username string            `yaml:"username" json:"username"`
	SSLMode  string            `yaml:"sslmode" json:"sslmode"`
	Extra    map[string]string `yaml:"extra" json:"extra,omitempty"`
}

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
	IsWrite      bool     `json:"isWrite"`
	AffectedRows int      `json:"affectedRows"`
}

// Connector abstracts interaction with an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a query and returns the first batch of rows.
	// For reads: opens a cursor and fetches fetchSize rows.
	// For writes: executes and returns affected rows count.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// WriteTable stores t under name. With replace set the previous
	// contents are dropped first; otherwise rows are appended.
	WriteTable(ctx context.Context, name string, t *frame.Table, replace bool) (int, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// Open creates a Connector for the given connection config.
// The password must be provided separately (from the secret store).
func Open(cfg ConnConfig, password string, log *zap.Logger) (Connector, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Driver {
	case DriverSQLite:
		return newSQLiteConnector(cfg, log)
	case DriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(cfg, password), log)
	case DriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(cfg, password), log)
	case DriverMongoDB:
		return newMongoConnector(cfg, password, log)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", cfg.Driver)
	}
}
