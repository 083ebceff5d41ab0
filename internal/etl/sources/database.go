package sources

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"fluve/internal/dbclient"
	"fluve/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads a table or query result from an external database through
// dbclient, paging through the cursor.

// SecretLookup resolves a named secret (a database password).
type SecretLookup func(key string) (string, error)

var secretLookup SecretLookup

// SetSecretLookup is called at startup with the configured secret store.
func SetSecretLookup(fn SecretLookup) { secretLookup = fn }

const dbFetchSize = 500

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Table or Query",
		ConfigFields: []etl.ConfigField{
			{Key: "driver", Label: "Driver", Required: true, Options: []string{"sqlite", "postgres", "mysql", "mongodb"}},
			{Key: "host", Label: "Host", Required: true, Help: "Hostname, or file path for sqlite"},
			{Key: "port", Label: "Port"},
			{Key: "database", Label: "Database"},
			{Key: "username", Label: "Username"},
			{Key: "sslmode", Label: "SSL Mode"},
			{Key: "passwordSecret", Label: "Password Secret", Help: "Secret store key holding the password"},
			{Key: "table", Label: "Table", Help: "Read the whole table (ignored when query is set)"},
			{Key: "query", Label: "Query", Help: "SQL, or a JSON find document for mongodb"},
		},
	}
}

// resolveDBConfig builds the connection config and the query to run.
func resolveDBConfig(cfg etl.SourceConfig) (dbclient.ConnConfig, string, string, error) {
	conn := dbclient.ConnConfig{
		Driver:   dbclient.Driver(cfg.String("driver")),
		Host:     cfg.String("host"),
		Port:     configInt(cfg, "port", 0),
		Database: cfg.String("database"),
		Username: cfg.String("username"),
		SSLMode:  cfg.String("sslmode"),
	}
	if conn.Driver == "" || conn.Host == "" {
		return conn, "", "", fmt.Errorf("driver and host are required")
	}

	query := strings.TrimSpace(cfg.String("query"))
	if query == "" {
		table := cfg.String("table")
		if table == "" {
			return conn, "", "", fmt.Errorf("table or query is required")
		}
		if conn.Driver == dbclient.DriverMongoDB {
			query = fmt.Sprintf(`{"collection":%q}`, table)
		} else {
			query = "SELECT * FROM " + table
		}
	}

	var password string
	if key := cfg.String("passwordSecret"); key != "" {
		if secretLookup == nil {
			return conn, "", "", fmt.Errorf("secret lookup not initialized")
		}
		pw, err := secretLookup(key)
		if err != nil {
			return conn, "", "", fmt.Errorf("password %q: %w", key, err)
		}
		password = pw
	}
	return conn, query, password, nil
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := queryAll(ctx, cfg, 1)
	if err != nil {
		return nil, err
	}
	return records.schema, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readAsync(ctx, func() ([]etl.Record, error) {
		res, err := queryAll(ctx, cfg, 0)
		if err != nil {
			return nil, err
		}
		return res.records, nil
	})
}

type queryResult struct {
	schema  *etl.Schema
	records []etl.Record
}

// queryAll runs the configured query and collects rows, stopping after
// limit rows when limit > 0.
func queryAll(ctx context.Context, cfg etl.SourceConfig, limit int) (*queryResult, error) {
	connCfg, query, password, err := resolveDBConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := dbclient.Open(connCfg, password, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	fetch := dbFetchSize
	if limit > 0 {
		fetch = limit
	}
	page, err := conn.Execute(ctx, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	if page.IsWrite {
		return nil, fmt.Errorf("query must read rows")
	}

	res := &queryResult{}
	columns := slices.Clone(page.Columns)
	res.records = appendPage(res.records, page)
	for page.HasMore && (limit <= 0 || len(res.records) < limit) {
		page, err = conn.FetchMore(ctx, dbFetchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch more: %w", err)
		}
		for _, col := range page.Columns {
			if !slices.Contains(columns, col) {
				columns = append(columns, col)
			}
		}
		res.records = appendPage(res.records, page)
	}

	res.schema = &etl.Schema{Fields: make([]etl.Field, len(columns))}
	for i, col := range columns {
		res.schema.Fields[i] = etl.Field{Name: col, Type: columnType(res.records, col)}
	}
	return res, nil
}

func appendPage(records []etl.Record, page *dbclient.QueryPage) []etl.Record {
	for _, row := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(row) {
				data[col] = row[i]
			}
		}
		records = append(records, etl.Record{Data: data})
	}
	return records
}

// columnType picks the field type from the scanned Go values.
func columnType(records []etl.Record, col string) string {
	for _, r := range records {
		switch r.Data[col].(type) {
		case nil:
			continue
		case int64, int32, int:
			return "integer"
		case float64, float32:
			return "number"
		case bool:
			return "boolean"
		case time.Time:
			return "datetime"
		default:
			return "text"
		}
	}
	return "text"
}
