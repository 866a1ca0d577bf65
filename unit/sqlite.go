package unit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS units (
	name   TEXT PRIMARY KEY,
	source TEXT NOT NULL
)`

// SQLiteSource serves units from a table units(name, source) in a SQLite
// database. It is the storage used for shared unit catalogues.
type SQLiteSource struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens (creating if necessary) a unit database.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing %s: %w", path, err)
	}
	return &SQLiteSource{path: path, db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

func (s *SQLiteSource) Name() string { return "sqlite:" + s.path }

func (s *SQLiteSource) Read(class string) (string, error) {
	var src string
	err := s.db.QueryRow(`SELECT source FROM units WHERE name = ?`, class).Scan(&src)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, class, s.Name())
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", class, err)
	}
	return src, nil
}

func (s *SQLiteSource) Classes() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM units ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Put stores or replaces the source of one class.
func (s *SQLiteSource) Put(ctx context.Context, class, src string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO units (name, source) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET source = excluded.source`, class, src)
	if err != nil {
		return fmt.Errorf("storing %s: %w", class, err)
	}
	return nil
}

// Import copies every class of src into the database in one transaction.
func (s *SQLiteSource) Import(ctx context.Context, src Source) (int, error) {
	names, err := src.Classes()
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO units (name, source) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET source = excluded.source`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, name := range names {
		text, err := src.Read(name)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, name, text); err != nil {
			return 0, fmt.Errorf("storing %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(names), nil
}
