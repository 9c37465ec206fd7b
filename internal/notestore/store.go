// Package notestore provides SQLite-backed note persistence for the
// capture pipeline: drafts, content updates, tags, and the tri-state
// active/trashed/purged lifecycle.
package notestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ravnholt/voxnote/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	lifecycle  TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_lifecycle ON notes(lifecycle);
CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at);
`

// DB wraps a sql.DB with note-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("notestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// NoteStore defines the persistence operations the pipeline and API use.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with fakes.
type NoteStore interface {
	Create(n models.Note) error
	Get(id string) (*models.Note, error)
	UpdateContent(id, content string) error
	SetTags(id string, tags []string) error
	List(limit, offset int, lifecycle models.NoteLifecycle) ([]models.NoteMetadata, int, error)
	Search(query string, limit int) ([]models.NoteMetadata, error)
	Trash(id string) error
	Restore(id string) error
	Purge(id string) error
	Delete(id string) error
	Close() error
}

// Verify *DB satisfies NoteStore at compile time.
var _ NoteStore = (*DB)(nil)
