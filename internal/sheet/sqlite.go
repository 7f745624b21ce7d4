package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version            INTEGER PRIMARY KEY,
	applied_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sheets (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS sheet_rows (
	sheet   TEXT    NOT NULL REFERENCES sheets(name) ON DELETE CASCADE,
	row_idx INTEGER NOT NULL,
	cells   TEXT    NOT NULL,
	PRIMARY KEY (sheet, row_idx)
);

CREATE TABLE IF NOT EXISTS cell_marks (
	ref                TEXT PRIMARY KEY,
	color              TEXT NOT NULL DEFAULT '',
	note               TEXT NOT NULL DEFAULT '',
	updated_at_unix_ms INTEGER NOT NULL
);
`

// SQLiteStore persists tables in a SQLite database. Each row is stored as a
// JSON array of cells, so numbers decode as float64 and times as strings.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps batch transactions strictly serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1`).Scan(&version)
	switch {
	case err == nil, errors.Is(err, sql.ErrNoRows):
	case strings.Contains(err.Error(), "no such table"):
		version = 0
	default:
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= 1 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("migration v1 failed: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_meta (version, applied_at_unix_ms) VALUES (1, ?)`,
		time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record migration v1: %w", err)
	}
	return nil
}

// CreateTable creates table with the given header row, replacing any
// existing table of the same name.
func (s *SQLiteStore) CreateTable(ctx context.Context, table string, header []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is best-effort after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = ?`, table); err != nil {
		return fmt.Errorf("failed to clear table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sheets (name) VALUES (?)`, table); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	cells, err := encodeCells(header)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_idx, cells) VALUES (?, ?, ?)`, table, HeaderRow, cells); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", table, err)
	}
	return tx.Commit()
}

// Tables lists table names in alphabetical order.
func (s *SQLiteStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sheets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// GetAllRows implements Reader.
func (s *SQLiteStore) GetAllRows(ctx context.Context, table string) ([][]any, error) {
	if err := s.requireTable(ctx, s.db, table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_idx, cells FROM sheet_rows WHERE sheet = ? ORDER BY row_idx`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		var idx int
		var raw string
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, err
		}
		// Keep positions aligned even if a row was never written.
		for len(out) < idx-1 {
			out = append(out, nil)
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", table, idx, err)
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

// WriteRow implements Store.
func (s *SQLiteStore) WriteRow(ctx context.Context, table string, row int, values []any) error {
	return s.BatchUpdate(ctx, table, []RowUpdate{{Row: row, Values: values}})
}

// BatchUpdate implements Store. All updates run in one transaction.
func (s *SQLiteStore) BatchUpdate(ctx context.Context, table string, updates []RowUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is best-effort after commit

	if err := s.requireTable(ctx, tx, table); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE sheet_rows SET cells = ? WHERE sheet = ? AND row_idx = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range updates {
		if u.Row <= HeaderRow {
			return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, u.Row)
		}
		cells, err := encodeCells(u.Values)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx, cells, table, u.Row)
		if err != nil {
			return fmt.Errorf("failed to update %s row %d: %w", table, u.Row, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, u.Row)
		}
	}
	return tx.Commit()
}

// AppendRows implements Store.
func (s *SQLiteStore) AppendRows(ctx context.Context, table string, values [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is best-effort after commit

	if err := s.requireTable(ctx, tx, table); err != nil {
		return err
	}

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_idx), 0) FROM sheet_rows WHERE sheet = ?`, table).Scan(&last); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows (sheet, row_idx, cells) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range values {
		cells, err := encodeCells(row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, table, last+1+i, cells); err != nil {
			return fmt.Errorf("failed to append to %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// MarkCell implements Store.
func (s *SQLiteStore) MarkCell(ctx context.Context, ref string, mark Mark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cell_marks (ref, color, note, updated_at_unix_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			color = CASE WHEN excluded.color <> '' THEN excluded.color ELSE cell_marks.color END,
			note  = CASE WHEN ? THEN '' WHEN excluded.note <> '' THEN excluded.note ELSE cell_marks.note END,
			updated_at_unix_ms = excluded.updated_at_unix_ms
	`, ref, mark.Color, mark.Note, time.Now().UnixMilli(), mark.Clear)
	if err != nil {
		return fmt.Errorf("failed to mark %s: %w", ref, err)
	}
	return nil
}

// Mark returns the annotation recorded for ref.
func (s *SQLiteStore) Mark(ctx context.Context, ref string) (Mark, bool, error) {
	var m Mark
	err := s.db.QueryRowContext(ctx, `SELECT color, note FROM cell_marks WHERE ref = ?`, ref).Scan(&m.Color, &m.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return Mark{}, false, nil
	}
	if err != nil {
		return Mark{}, false, err
	}
	return m, true, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) requireTable(ctx context.Context, q queryer, table string) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sheets WHERE name = ?`, table).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

func encodeCells(values []any) (string, error) {
	cells := make([]any, len(values))
	for i, v := range values {
		if t, ok := v.(time.Time); ok {
			cells[i] = FormatTime(t)
			continue
		}
		cells[i] = v
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("failed to encode cells: %w", err)
	}
	return string(data), nil
}

func decodeCells(raw string) ([]any, error) {
	var cells []any
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("failed to decode cells: %w", err)
	}
	return cells, nil
}
