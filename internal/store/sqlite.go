// Package store provides SQLite-backed persistence for kanaime: user
// dictionary entries and per-key conversion counts. Buffer state is never
// stored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the kanaime store.
const schema = `
CREATE TABLE IF NOT EXISTS user_entries (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    created_ns  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversions (
    key         TEXT NOT NULL,
    output      TEXT NOT NULL,
    count       INTEGER NOT NULL DEFAULT 0,
    last_ns     INTEGER NOT NULL,
    PRIMARY KEY (key, output)
);

CREATE INDEX IF NOT EXISTS idx_conversions_count ON conversions(count);
`

// ErrNotFound is returned when a user entry does not exist.
var ErrNotFound = errors.New("store: entry not found")

// Entry is a user dictionary entry.
type Entry struct {
	Key       string
	Value     string
	CreatedAt time.Time
}

// Conversion is one converted key as reported by a host.
type Conversion struct {
	Key    string
	Output string
	At     time.Time
}

// ConversionStat aggregates how often a key converted to an output.
type ConversionStat struct {
	Key    string
	Output string
	Count  int64
	Last   time.Time
}

// Options tunes the connection.
type Options struct {
	// BusyTimeout is how long a writer waits for a locked database.
	BusyTimeout time.Duration
}

// Store represents the SQLite store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the SQLite database at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{BusyTimeout: 5 * time.Second})
}

// OpenWithOptions is Open with explicit connection options.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutEntry inserts or replaces a user dictionary entry.
func (s *Store) PutEntry(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_entries (key, value, created_ns) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a user dictionary entry.
func (s *Store) DeleteEntry(key string) error {
	res, err := s.db.Exec(`DELETE FROM user_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// GetEntry retrieves a user dictionary entry.
func (s *Store) GetEntry(key string) (*Entry, error) {
	var e Entry
	var createdNs int64
	err := s.db.QueryRow(`
		SELECT key, value, created_ns FROM user_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.Value, &createdNs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	e.CreatedAt = time.Unix(0, createdNs)
	return &e, nil
}

// ListEntries returns all user entries ordered by key.
func (s *Store) ListEntries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, value, created_ns FROM user_entries ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdNs int64
		if err := rows.Scan(&e.Key, &e.Value, &createdNs); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdNs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Entries returns the user dictionary as a map, ready to merge over a
// romaji.Dictionary.
func (s *Store) Entries() (map[string]string, error) {
	list, err := s.ListEntries()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, e := range list {
		out[e.Key] = e.Value
	}
	return out, nil
}

// RecordConversions adds one to the count of every conversion in a single
// transaction.
func (s *Store) RecordConversions(convs []Conversion) error {
	if len(convs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO conversions (key, output, count, last_ns) VALUES (?, ?, 1, ?)
		ON CONFLICT(key, output) DO UPDATE SET
		    count = count + 1,
		    last_ns = MAX(last_ns, excluded.last_ns)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range convs {
		at := c.At
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.Exec(c.Key, c.Output, at.UnixNano()); err != nil {
			return fmt.Errorf("record conversion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TopConversions returns the n most frequent conversions. n <= 0 returns all.
func (s *Store) TopConversions(n int) ([]ConversionStat, error) {
	query := `SELECT key, output, count, last_ns FROM conversions ORDER BY count DESC, key ASC`
	var args []interface{}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	var stats []ConversionStat
	for rows.Next() {
		var st ConversionStat
		var lastNs int64
		if err := rows.Scan(&st.Key, &st.Output, &st.Count, &lastNs); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		st.Last = time.Unix(0, lastNs)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// TotalConversions returns the sum of all conversion counts.
func (s *Store) TotalConversions() (int64, error) {
	var total int64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(count), 0) FROM conversions`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum conversions: %w", err)
	}
	return total, nil
}

// ResetConversions deletes all conversion statistics.
func (s *Store) ResetConversions() error {
	if _, err := s.db.Exec(`DELETE FROM conversions`); err != nil {
		return fmt.Errorf("reset conversions: %w", err)
	}
	return nil
}

// Stats summarizes the store contents.
type Stats struct {
	Entries     int
	Keys        int
	Conversions int64
}

// Stats returns row counts.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM user_entries`).Scan(&st.Entries); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT key) FROM conversions`).Scan(&st.Keys); err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}
	total, err := s.TotalConversions()
	if err != nil {
		return nil, err
	}
	st.Conversions = total
	return &st, nil
}

// SortStatsByKey orders stats alphabetically by key then output.
func SortStatsByKey(stats []ConversionStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Key != stats[j].Key {
			return stats[i].Key < stats[j].Key
		}
		return stats[i].Output < stats[j].Output
	})
}
