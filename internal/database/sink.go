// Package database upserts prepared event records into the external
// calendar_events table (Postgres).
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/hajkuron/notion-githubchart/internal/export"
	appLog "github.com/hajkuron/notion-githubchart/internal/log"
)

const (
	defaultTableName = "calendar_events"
	operationTimeout = 30 * time.Second
)

// ErrEmptyDSN is returned when a Sink is constructed without a DSN.
var ErrEmptyDSN = errors.New("database DSN is empty")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Sink writes prepared records into a Postgres table, creating the
// table on first use and upserting on the stable ID.
type Sink struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewSink creates a Sink for the given DSN and table. An empty table
// name falls back to calendar_events.
func NewSink(dsn, tableName string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	if tableName == "" {
		tableName = defaultTableName
	}
	return &Sink{
		dsn:       dsn,
		tableName: tableName,
		openDB:    sql.Open,
	}, nil
}

// Upsert writes all prepared records in one transaction. Existing rows
// (matched on id) are overwritten with the latest state.
func (s *Sink) Upsert(ctx context.Context, records []export.PreparedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, version_id, date, start, "end", value,
			summary, description, calendar_name, status,
			new_date, new_start, new_end, duration
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			version_id = EXCLUDED.version_id,
			date = EXCLUDED.date,
			start = EXCLUDED.start,
			"end" = EXCLUDED."end",
			value = EXCLUDED.value,
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			calendar_name = EXCLUDED.calendar_name,
			status = EXCLUDED.status,
			new_date = EXCLUDED.new_date,
			new_start = EXCLUDED.new_start,
			new_end = EXCLUDED.new_end,
			duration = EXCLUDED.duration`, quoteIdentifier(s.tableName))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.VersionID, rec.Date, rec.Start, rec.End, rec.Value,
			rec.Summary, rec.Description, rec.CalendarName, string(rec.Status),
			rec.NewDate, rec.NewStart, rec.NewEnd, rec.Duration,
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	appLog.Info("upserted records", "table", s.tableName, "count", len(records))
	return nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Sink) ensureReady(ctx context.Context) error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}

		initCtx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				version_id TEXT NOT NULL,
				date TEXT NOT NULL,
				start TEXT NOT NULL,
				"end" TEXT NOT NULL,
				value DOUBLE PRECISION NOT NULL DEFAULT 1,
				summary TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				calendar_name TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				new_date TEXT NOT NULL DEFAULT '',
				new_start TEXT NOT NULL DEFAULT '',
				new_end TEXT NOT NULL DEFAULT '',
				duration DOUBLE PRECISION NOT NULL DEFAULT 0
			)`, quoteIdentifier(s.tableName))
		if _, err := db.ExecContext(initCtx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
