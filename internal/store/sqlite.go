// Package store persists per-site counters in SQLite.
//
// Only counters are stored. Passwords are always derived again and never
// written anywhere.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"easypass/internal/derive"
	"easypass/internal/security"
)

// Errors returned by the store.
var (
	ErrInvalidCounter = errors.New("store: counter must be at least 1")
	ErrEmptySite      = errors.New("store: site is empty")
)

// Entry is one stored counter.
type Entry struct {
	Site      string
	Counter   int
	UpdatedAt time.Time
}

// Store is the SQLite counter store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := security.EnsureSecureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens a private in-memory store.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func canonical(site string) (string, error) {
	site = derive.Canonical(strings.TrimSpace(site))
	if site == "" {
		return "", ErrEmptySite
	}
	return site, nil
}

// Get returns the counter stored for site. ok is false when none is stored.
func (s *Store) Get(ctx context.Context, site string) (n int, ok bool, err error) {
	site, err = canonical(site)
	if err != nil {
		return 0, false, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT counter FROM counters WHERE site = ?", site).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get counter: %w", err)
	}
	return n, true, nil
}

// Set stores counter n for site.
func (s *Store) Set(ctx context.Context, site string, n int) error {
	if n < 1 {
		return ErrInvalidCounter
	}
	site, err := canonical(site)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO counters (site, counter, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(site) DO UPDATE SET counter = excluded.counter, updated_at = excluded.updated_at`,
		site, n, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

// Bump increments the counter for site and returns the new value. A site
// without a stored counter starts from base, the counter it currently
// derives with.
func (s *Store) Bump(ctx context.Context, site string, base int) (int, error) {
	if base < 1 {
		base = 1
	}
	site, err := canonical(site)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, "SELECT counter FROM counters WHERE site = ?", site).Scan(&n)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		n = base
	case err != nil:
		return 0, fmt.Errorf("read counter: %w", err)
	}
	n++

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO counters (site, counter, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(site) DO UPDATE SET counter = excluded.counter, updated_at = excluded.updated_at`,
		site, n, time.Now().UnixNano(),
	); err != nil {
		return 0, fmt.Errorf("write counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Delete removes the counter for site. It reports whether one existed.
func (s *Store) Delete(ctx context.Context, site string) (bool, error) {
	site, err := canonical(site)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM counters WHERE site = ?", site)
	if err != nil {
		return false, fmt.Errorf("delete counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List returns all stored counters ordered by site.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT site, counter, updated_at FROM counters ORDER BY site")
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Site, &e.Counter, &updated); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
