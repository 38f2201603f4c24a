package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	id TEXT PRIMARY KEY,
	saved_at DATETIME NOT NULL,
	benchmark TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL DEFAULT '',
	holdings TEXT NOT NULL
);
`

// SQLite persists recent portfolios in a database file so they survive
// restarts.
type SQLite struct {
	db       *sql.DB
	capacity int
	now      func() time.Time
}

func NewSQLite(path string, capacity int) (*SQLite, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, capacity: capacity, now: time.Now}, nil
}

func (s *SQLite) Save(ctx context.Context, e Entry) (Entry, error) {
	e, err := stamp(e, s.now())
	if err != nil {
		return Entry{}, err
	}
	holdings, err := json.Marshal(e.Portfolio.Holdings)
	if err != nil {
		return Entry{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO portfolios (id, saved_at, benchmark, start_date, holdings)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SavedAt, e.Benchmark, e.StartDate, string(holdings),
	); err != nil {
		return Entry{}, fmt.Errorf("insert portfolio: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM portfolios
		WHERE id NOT IN (SELECT id FROM portfolios ORDER BY id DESC LIMIT ?)`,
		s.capacity,
	); err != nil {
		return Entry{}, fmt.Errorf("evict portfolios: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *SQLite) Recent(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, saved_at, benchmark, start_date, holdings
		FROM portfolios ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, saved_at, benchmark, start_date, holdings
		FROM portfolios WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e        Entry
		holdings string
	)
	if err := sc.Scan(&e.ID, &e.SavedAt, &e.Benchmark, &e.StartDate, &holdings); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(holdings), &e.Portfolio.Holdings); err != nil {
		return Entry{}, fmt.Errorf("decode holdings for %s: %w", e.ID, err)
	}
	e.SavedAt = e.SavedAt.UTC()
	return e, nil
}
