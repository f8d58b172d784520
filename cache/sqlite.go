package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/stackflow/wire"
)

// SQLite is a Store backed by one SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Concurrent CLI runs share the file.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS summaries (
		key      TEXT PRIMARY KEY,
		function TEXT NOT NULL,
		data     BLOB NOT NULL,
		stored   INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened cache %s", path)
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Get(ctx context.Context, k Key) (*wire.Summary, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM summaries WHERE key = ?", k.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying summary %s: %w", k.Short(), err)
	}
	sum, err := wire.UnmarshalSummary(data)
	if err != nil {
		return nil, false, err
	}
	return sum, true, nil
}

func (s *SQLite) Put(ctx context.Context, k Key, sum *wire.Summary) error {
	data, err := wire.MarshalSummary(sum)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO summaries (key, function, data, stored) VALUES (?, ?, ?, ?)",
		k.String(), sum.Function, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving summary %s: %w", k.Short(), err)
	}
	return nil
}

// Len returns the number of stored summaries.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting summaries: %w", err)
	}
	return n, nil
}

// Prune deletes summaries stored before cutoff and reports how many went.
func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries WHERE stored < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning summaries: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
