package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "adminpanel/pkg/logx"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing migration failures.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Store is the SQLite-backed system of record. It is safe for concurrent use;
// writes are serialized through a single connection.
type Store struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (creating if needed) the database file. It does not touch the schema.
func Open(ctx context.Context, cfg Config, log logx.Logger, opts ...Option) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, &Error{Op: "open", Err: errors.New("path is required")}
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &Error{Op: "open", Err: err}
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busy.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &Error{Op: "open", Err: err}
	}

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{db: db, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Migrate applies the embedded schema migrations. Safe to repeat.
func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: s.log})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return &Error{Op: "migrate", Err: err}
	}
	if err := gooseUpContext(ctx, s.db, "migrations"); err != nil {
		return &Error{Op: "migrate", Err: err}
	}
	return nil
}

// Initialize ensures the schema and the administrator row exist.
// Existing data is preserved. The admin row is upserted with is_admin set,
// and any other user flagged as admin is demoted so exactly one remains.
func (s *Store) Initialize(ctx context.Context, admin Admin) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	now := s.stamp()
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users(user_id, username, first_name, last_name, is_admin, join_date)
			 VALUES(?, ?, ?, '', 1, ?)
			 ON CONFLICT(user_id) DO UPDATE SET is_admin = 1`,
			admin.UserID, admin.Username, admin.FirstName, now,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE users SET is_admin = 0 WHERE is_admin = 1 AND user_id <> ?`, admin.UserID)
		return err
	})
	if err != nil {
		return wrap("initialize", err)
	}
	s.log.Info("storage initialized", logx.Int64("admin_id", admin.UserID))
	return nil
}

// Stats returns row counts across the three tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM activity_log),
			(SELECT COUNT(*) FROM alerts),
			(SELECT COUNT(*) FROM alerts WHERE resolved = 0)`,
	).Scan(&st.Users, &st.Activities, &st.Alerts, &st.UnresolvedOpen)
	if err != nil {
		return Stats{}, wrap("stats", err)
	}
	return st, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return wrap("close", s.db.Close())
}

func (s *Store) stamp() int64 { return s.now().UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

type gooseLogger struct{ log logx.Logger }

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), logx.String("component", "migrate"))
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), logx.String("component", "migrate"))
}
