package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"fluve/internal/dbclient"
	"fluve/internal/etl"
	"fluve/internal/frame"
)

// ─────────────────────────────────────────────────────────────
// Publish Service: the analyst database
// ─────────────────────────────────────────────────────────────

// PublishService owns one lazily opened connection to the analyst database.
// It is an etl.Destination, and also answers read-only queries against the
// published tables.
type PublishService struct {
	cfg      dbclient.ConnConfig
	password string
	log      *zap.Logger

	mu   sync.Mutex
	conn dbclient.Connector
}

// NewPublishService creates a service; nothing is opened until first use.
func NewPublishService(cfg dbclient.ConnConfig, password string, log *zap.Logger) *PublishService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PublishService{cfg: cfg, password: password, log: log}
}

// Write implements etl.Destination.
func (s *PublishService) Write(ctx context.Context, target string, t *frame.Table, mode etl.SyncMode) (int, error) {
	conn, err := s.connector()
	if err != nil {
		return 0, err
	}
	w := &etl.ConnectorWriter{Conn: conn}
	return w.Write(ctx, target, t, mode)
}

// TestConnection verifies the database is reachable.
func (s *PublishService) TestConnection(ctx context.Context) error {
	conn, err := s.connector()
	if err != nil {
		return err
	}
	return conn.TestConnection(ctx)
}

// Query runs a read query and returns its first page.
func (s *PublishService) Query(ctx context.Context, query string, fetchSize int) (*dbclient.QueryPage, error) {
	conn, err := s.connector()
	if err != nil {
		return nil, err
	}
	page, err := conn.Execute(ctx, query, fetchSize)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return page, nil
}

// FetchMore continues the last query.
func (s *PublishService) FetchMore(ctx context.Context, fetchSize int) (*dbclient.QueryPage, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("no active query")
	}
	return conn.FetchMore(ctx, fetchSize)
}

// ── Connector lifecycle ────────────────────────────────────

func (s *PublishService) connector() (dbclient.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := dbclient.Open(s.cfg, s.password, s.log)
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Close tears down the connection, if one was opened.
func (s *PublishService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
