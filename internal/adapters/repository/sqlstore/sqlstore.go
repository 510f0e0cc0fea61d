// Package sqlstore is the database/sql storage backend. It runs on SQLite
// (modernc.org/sqlite, pure Go) for development and tests and on PostgreSQL
// (lib/pq) in production. Optimistic concurrency uses the version column.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store implements repository.Store on database/sql.
type Store struct {
	db       *sql.DB
	driver   string
	settings repository.Settings
	log      logger.Logger
}

var _ repository.Store = (*Store)(nil)

// Open connects to the database and creates the schema.
func Open(ctx context.Context, driver, dsn string, opts ...repository.Option) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("sql driver %q: %w", driver, repository.ErrUnknownBackend)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps an in-memory database alive and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	s, err := New(ctx, db, driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool and creates the schema.
func New(ctx context.Context, db *sql.DB, driver string, opts ...repository.Option) (*Store, error) {
	settings := repository.ApplyOptions(opts...)
	s := &Store{
		db:       db,
		driver:   driver,
		settings: settings,
		log:      settings.Logger.Named("sqlstore"),
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := CreateSchema(ctx, db); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "sql store ready", logger.String("driver", driver))
	return s, nil
}

// Backend implements repository.Store.
func (s *Store) Backend() string { return s.driver }

// Close implements repository.Store.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

// q rewrites ? placeholders into the driver's syntax.
func (s *Store) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// observe records latency and, on failure, an error count for op.
func (s *Store) observe(op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(s.driver, op, metrics.Since(start))
	if err != nil && *err != nil {
		metrics.RecordStoreError(s.driver, op)
	}
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
