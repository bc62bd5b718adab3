// Package scrollpos persists the last viewed item per feed.
package scrollpos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no row exists for the feed key.
var ErrNotFound = errors.New("scrollpos: no saved position")

// Position is the saved scroll position of one feed.
// Empty LastViewedItemID and zero LastViewedSortValue stand for NULL.
type Position struct {
	FeedKey             string `msgpack:"k"`
	LastViewedItemID    string `msgpack:"i"`
	LastViewedSortValue int64  `msgpack:"s"`
	LastUpdated         int64  `msgpack:"u"` // unix ms
}

// Valid reports whether p identifies an item. Invalid positions are
// treated as no saved position.
func (p Position) Valid() bool {
	return p.LastViewedItemID != "" && p.LastViewedSortValue > 0
}

// Store handles SQLite persistence of positions. Concrete type.
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a Store at dbPath, creating the table if needed.
// File databases use WAL; ":memory:" uses a single shared-cache connection.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feed_scroll_position (
		feed_key TEXT PRIMARY KEY,
		last_viewed_item_id TEXT,
		last_viewed_sort_value INTEGER,
		last_updated INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Get returns the saved position for feedKey, or ErrNotFound.
func (s *Store) Get(ctx context.Context, feedKey string) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT feed_key, last_viewed_item_id, last_viewed_sort_value, last_updated
		FROM feed_scroll_position WHERE feed_key = ?
	`, feedKey)

	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("get position %q: %w", feedKey, err)
	}
	return p, nil
}

// Put upserts p, replacing the whole row.
func (s *Store) Put(ctx context.Context, p Position) error {
	if p.FeedKey == "" {
		return errors.New("put position: empty feed key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_scroll_position (feed_key, last_viewed_item_id, last_viewed_sort_value, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(feed_key) DO UPDATE SET
			last_viewed_item_id = excluded.last_viewed_item_id,
			last_viewed_sort_value = excluded.last_viewed_sort_value,
			last_updated = excluded.last_updated
	`, p.FeedKey, nullString(p.LastViewedItemID), nullInt(p.LastViewedSortValue), p.LastUpdated)
	if err != nil {
		return fmt.Errorf("put position %q: %w", p.FeedKey, err)
	}
	return nil
}

// Delete removes the saved position for feedKey. Deleting a missing key
// is not an error.
func (s *Store) Delete(ctx context.Context, feedKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM feed_scroll_position WHERE feed_key = ?`, feedKey); err != nil {
		return fmt.Errorf("delete position %q: %w", feedKey, err)
	}
	return nil
}

// Clear removes every saved position and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM feed_scroll_position`)
	if err != nil {
		return 0, fmt.Errorf("clear positions: %w", err)
	}
	return res.RowsAffected()
}

// List returns every saved position, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT feed_key, last_viewed_item_id, last_viewed_sort_value, last_updated
		FROM feed_scroll_position
		ORDER BY last_updated DESC, feed_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(sc scanner) (Position, error) {
	var (
		p      Position
		itemID sql.NullString
		sortV  sql.NullInt64
	)
	if err := sc.Scan(&p.FeedKey, &itemID, &sortV, &p.LastUpdated); err != nil {
		return Position{}, err
	}
	p.LastViewedItemID = itemID.String
	p.LastViewedSortValue = sortV.Int64
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
