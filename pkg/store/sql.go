package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary

	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
)

const createTable = `CREATE TABLE IF NOT EXISTS basque_names (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
)`

// SQL is a mutable store backed by the basque_names table.
type SQL struct {
	db *sql.DB
}

var _ Mutable = (*SQL)(nil)

// OpenSQLite opens (or creates) the sqlite database at path and prepares the
// table. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		return nil, cacheerr.Configuration("sqlite store: empty database path")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	s, err := NewSQL(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL prepares the table in db and returns a store on it.
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create basque_names table: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Lookup(ctx context.Context, id int) (record.Record, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM basque_names WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, cacheerr.NotFound("id %d is not stored", id)
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("lookup %d: %w", id, err)
	}
	return record.New(id, name), nil
}

func (s *SQL) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM basque_names`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count basque_names: %w", err)
	}
	return n, nil
}

func (s *SQL) Save(ctx context.Context, rec record.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO basque_names (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, rec.ID, rec.Name)
	if err != nil {
		return fmt.Errorf("save %d: %w", rec.ID, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, id int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM basque_names WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %d: %w", id, err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}
