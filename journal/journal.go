// Package journal records which inputs were already recompressed so batch
// runs can skip unchanged files.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded recompression.
type Entry struct {
	Input       string
	InputSize   int64
	InputMTime  time.Time
	Quality     int
	Output      string
	OutputSize  int64
	ProcessedAt time.Time
}

// Journal is a SQLite-backed record of processed inputs.
type Journal struct {
	db   *sql.DB
	path string
}

const schema = `CREATE TABLE IF NOT EXISTS processed (
	input        TEXT    NOT NULL,
	quality      INTEGER NOT NULL,
	input_size   INTEGER NOT NULL,
	input_mtime  INTEGER NOT NULL,
	output       TEXT    NOT NULL,
	output_size  INTEGER NOT NULL,
	processed_at TEXT    NOT NULL,
	PRIMARY KEY (input, quality)
)`

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Seen reports whether input was recorded at quality with the same size and
// modification time it has now.
func (j *Journal) Seen(ctx context.Context, input string, quality int) (bool, error) {
	abs, info, err := stat(input)
	if err != nil {
		return false, err
	}
	var size, mtime int64
	err = j.db.QueryRowContext(ctx,
		`SELECT input_size, input_mtime FROM processed WHERE input = ? AND quality = ?`,
		abs, quality,
	).Scan(&size, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query journal: %w", err)
	}
	return size == info.Size() && mtime == info.ModTime().UnixNano(), nil
}

// Record stores the outcome for input, replacing any previous entry at the
// same quality.
func (j *Journal) Record(ctx context.Context, input, output string, quality int, outputSize int64) error {
	abs, info, err := stat(input)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO processed (input, quality, input_size, input_mtime, output, output_size, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (input, quality) DO UPDATE SET
		   input_size = excluded.input_size,
		   input_mtime = excluded.input_mtime,
		   output = excluded.output,
		   output_size = excluded.output_size,
		   processed_at = excluded.processed_at`,
		abs, quality, info.Size(), info.ModTime().UnixNano(), output, outputSize,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", input, err)
	}
	return nil
}

// Entries lists every recorded recompression ordered by input path.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT input, quality, input_size, input_mtime, output, output_size, processed_at
		 FROM processed ORDER BY input, quality`)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			mtime     int64
			processed string
		)
		if err := rows.Scan(&e.Input, &e.Quality, &e.InputSize, &mtime, &e.Output, &e.OutputSize, &processed); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.InputMTime = time.Unix(0, mtime)
		e.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processed)
		out = append(out, e)
	}
	return out, rows.Err()
}

func stat(path string) (string, os.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, err
	}
	return abs, info, nil
}
