package runstate

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/BDNK1/plugrun/runtime"
)

// Config selects and tunes the SQL backend.
type Config struct {
	Driver            string `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
	DSN               string `yaml:"dsn" default:"plugrun.db" validate:"required,dsn"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"` // 5 min default
}

// NewRunID generates a new ULID-based run identifier.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and runs migrations.
func Open(ctx context.Context, cfg Config, l *slog.Logger) (*SQLStore, error) {
	if l == nil {
		l = slog.Default()
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if cfg.Driver == "sqlite" {
		// Each connection to :memory: is a separate database, so keep exactly one alive.
		if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
			db.SetConnMaxLifetime(0)
		} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	l.InfoContext(ctx, "Run state store opened",
		"driver", cfg.Driver,
		"dsn", redactDSN(cfg.DSN))

	return &SQLStore{db: db, driver: cfg.Driver}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Fixed width so that stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeFormat, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
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

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) getState(ctx context.Context, q queryer, key Key) (State, error) {
	var lastRun sql.NullString
	var count int64

	err := q.QueryRowContext(ctx, s.rebind(`
		SELECT last_run_at, execution_count FROM plug_state
		WHERE provider = ? AND plug = ? AND integration = ?`),
		key.Provider, key.Plug, key.Integration,
	).Scan(&lastRun, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}

	last, err := parseTimePtr(lastRun)
	if err != nil {
		return State{}, fmt.Errorf("parse last_run_at: %w", err)
	}
	return State{LastRunAt: last, ExecutionCount: int(count)}, nil
}

// Get returns the stored state; a key without history yields the zero State.
func (s *SQLStore) Get(ctx context.Context, key Key) (State, error) {
	state, err := s.getState(ctx, s.db, key)
	if err != nil {
		return State{}, fmt.Errorf("get state: %w", err)
	}
	return state, nil
}

// Record stores a run row and, for successful results, advances the state.
func (s *SQLStore) Record(ctx context.Context, key Key, res *runtime.Result, at time.Time) (State, error) {
	if res == nil {
		return State{}, fmt.Errorf("result cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return State{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	success := 0
	if res.Success {
		success = 1
	}
	var errorMsg sql.NullString
	if res.Error != "" {
		errorMsg = sql.NullString{String: res.Error, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO plug_runs (id, provider, plug, integration, success, error_msg, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		NewRunID(),
		key.Provider,
		key.Plug,
		key.Integration,
		success,
		errorMsg,
		res.Duration.Milliseconds(),
		formatTime(at),
	); err != nil {
		return State{}, fmt.Errorf("insert run: %w", err)
	}

	if res.Success {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO plug_state (provider, plug, integration, last_run_at, execution_count)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT (provider, plug, integration) DO UPDATE SET
				last_run_at = excluded.last_run_at,
				execution_count = plug_state.execution_count + 1`),
			key.Provider,
			key.Plug,
			key.Integration,
			formatTime(at),
		); err != nil {
			return State{}, fmt.Errorf("update state: %w", err)
		}
	}

	state, err := s.getState(ctx, tx, key)
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return State{}, fmt.Errorf("commit: %w", err)
	}
	return state, nil
}

// ListRuns returns the most recent runs for key, newest first.
func (s *SQLStore) ListRuns(ctx context.Context, key Key, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, success, error_msg, duration_ms, started_at FROM plug_runs
		WHERE provider = ? AND plug = ? AND integration = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`),
		key.Provider, key.Plug, key.Integration, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var success int64
		var errorMsg sql.NullString
		var startedAt string

		if err := rows.Scan(&r.ID, &success, &errorMsg, &r.DurationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.Key = key
		r.Success = success == 1
		r.ErrorMsg = errorMsg.String
		r.StartedAt, err = time.Parse(timeFormat, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	return u.Redacted()
}
