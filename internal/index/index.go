// Package index maintains an optional SQLite FTS5 full-text index over
// the normalized meeting collection.  The index is derived data: it is
// rebuilt wholesale from each snapshot and can always be discarded.
package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/oviedran/granola-mcp/internal/granola"
)

// Driver is the database/sql driver name registered by modernc.org/sqlite.
const Driver = "sqlite"

// InMemory is the DSN for a throwaway in-memory index.
const InMemory = ":memory:"

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS meeting_fts USING fts5(
	id UNINDEXED,
	title,
	notes,
	participants
);`

// Index is a rebuildable full-text index over meeting records.
type Index struct {
	db *sqlx.DB
}

// Open opens (or creates) the index database at path.  Use InMemory for a
// process-lifetime index.
func Open(path string) (*Index, error) {
	db, err := sqlx.Open(Driver, path)
	if err != nil {
		return nil, fmt.Errorf("index: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Rebuild replaces the index contents with the given records.  The swap
// happens in a single transaction, so searches never observe a partially
// built index.
func (ix *Index) Rebuild(ctx context.Context, meetings []granola.Meeting) error {
	tx, err := ix.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM meeting_fts`); err != nil {
		return fmt.Errorf("index: clear: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO meeting_fts (id, title, notes, participants) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, m := range meetings {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Title, m.Notes, strings.Join(m.Participants, " ")); err != nil {
			return fmt.Errorf("index: insert %q: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit rebuild: %w", err)
	}
	return nil
}

// Search returns meeting ids matching query, best matches first.  The
// query is matched as a phrase, so FTS5 operator syntax in user input
// cannot break the statement.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	err := ix.db.SelectContext(ctx, &ids,
		`SELECT id FROM meeting_fts WHERE meeting_fts MATCH ? ORDER BY rank LIMIT ?`,
		phrase(query), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return ids, nil
}

// Count returns the number of indexed records.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM meeting_fts`); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// phrase quotes query as an FTS5 phrase literal.
func phrase(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}
