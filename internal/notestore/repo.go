package notestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/checksum"
	"github.com/ravnholt/voxnote/internal/models"
)

// previewLen bounds the content excerpt in list responses.
const previewLen = 120

// Create inserts a new note row. Pipeline drafts arrive with empty content.
func (db *DB) Create(n models.Note) error {
	if n.Lifecycle == "" {
		n.Lifecycle = models.LifecycleActive
	}
	tagsJSON, _ := json.Marshal(nonNil(n.Tags))
	_, err := db.conn.Exec(`
		INSERT INTO notes (id, owner_id, content, checksum, tags, lifecycle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.OwnerID, n.Content, checksum.SumString(n.Content), string(tagsJSON),
		string(n.Lifecycle), n.CreatedAt, n.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return apperr.ErrConflict
		}
		return fmt.Errorf("notestore: create: %w", err)
	}
	return nil
}

// Get returns a note by id, including trashed notes. Purged notes are gone.
func (db *DB) Get(id string) (*models.Note, error) {
	row := db.conn.QueryRow(`
		SELECT id, owner_id, content, checksum, tags, lifecycle, created_at, updated_at
		FROM notes WHERE id = ?
	`, id)

	var n models.Note
	var tagsJSON, lifecycle string
	err := row.Scan(&n.ID, &n.OwnerID, &n.Content, &n.Checksum, &tagsJSON,
		&lifecycle, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notestore: get: %w", err)
	}
	n.Lifecycle = models.NoteLifecycle(lifecycle)
	_ = json.Unmarshal([]byte(tagsJSON), &n.Tags)
	n.Tags = nonNil(n.Tags)
	return &n, nil
}

// UpdateContent replaces a note's content, refreshing checksum and
// updated_at. Trashed notes cannot be updated and report ErrNoteTrashed.
func (db *DB) UpdateContent(id, content string) error {
	res, err := db.conn.Exec(`
		UPDATE notes SET content = ?, checksum = ?, updated_at = ?
		WHERE id = ? AND lifecycle = ?
	`, content, checksum.SumString(content), time.Now().UTC(), id, string(models.LifecycleActive))
	if err != nil {
		return fmt.Errorf("notestore: update content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notestore: rows affected: %w", err)
	}
	if n == 0 {
		var lifecycle string
		err := db.conn.QueryRow(`SELECT lifecycle FROM notes WHERE id = ?`, id).Scan(&lifecycle)
		if err == nil && lifecycle == string(models.LifecycleTrashed) {
			return apperr.ErrNoteTrashed
		}
		return apperr.ErrNotFound
	}
	return nil
}

// SetTags replaces a note's tag associations.
func (db *DB) SetTags(id string, tags []string) error {
	tagsJSON, _ := json.Marshal(nonNil(tags))
	res, err := db.conn.Exec(`
		UPDATE notes SET tags = ?, updated_at = ? WHERE id = ?
	`, string(tagsJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("notestore: set tags: %w", err)
	}
	return db.requireHit(res, id)
}

// List returns paginated note metadata filtered by lifecycle.
func (db *DB) List(limit, offset int, lifecycle models.NoteLifecycle) ([]models.NoteMetadata, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if lifecycle == "" {
		lifecycle = models.LifecycleActive
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes WHERE lifecycle = ?`,
		string(lifecycle)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("notestore: count: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, content, checksum, tags, updated_at
		FROM notes WHERE lifecycle = ?
		ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, string(lifecycle), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("notestore: list: %w", err)
	}
	defer rows.Close()

	out, err := scanMetadata(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Search matches query against active note content with a LIKE scan.
func (db *DB) Search(query string, limit int) ([]models.NoteMetadata, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT id, content, checksum, tags, updated_at
		FROM notes
		WHERE lifecycle = ? AND content LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC LIMIT ?
	`, string(models.LifecycleActive), pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("notestore: search: %w", err)
	}
	defer rows.Close()
	return scanMetadata(rows)
}

// Trash soft-deletes an active note.
func (db *DB) Trash(id string) error {
	return db.transition(id, models.LifecycleActive, models.LifecycleTrashed)
}

// Restore brings a trashed note back to active.
func (db *DB) Restore(id string) error {
	return db.transition(id, models.LifecycleTrashed, models.LifecycleActive)
}

// Purge hard-deletes a trashed note. Active notes must be trashed first.
func (db *DB) Purge(id string) error {
	res, err := db.conn.Exec(`DELETE FROM notes WHERE id = ? AND lifecycle = ?`,
		id, string(models.LifecycleTrashed))
	if err != nil {
		return fmt.Errorf("notestore: purge: %w", err)
	}
	return db.requireHit(res, id)
}

// Delete hard-deletes a note regardless of lifecycle. The pipeline uses
// this to discard empty drafts that never received content.
func (db *DB) Delete(id string) error {
	res, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("notestore: delete: %w", err)
	}
	return db.requireHit(res, id)
}

func (db *DB) transition(id string, from, to models.NoteLifecycle) error {
	res, err := db.conn.Exec(`
		UPDATE notes SET lifecycle = ?, updated_at = ? WHERE id = ? AND lifecycle = ?
	`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("notestore: transition to %s: %w", to, err)
	}
	return db.requireHit(res, id)
}

// requireHit maps a zero-row update to ErrNotFound.
func (db *DB) requireHit(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notestore: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func scanMetadata(rows *sql.Rows) ([]models.NoteMetadata, error) {
	var out []models.NoteMetadata
	for rows.Next() {
		var m models.NoteMetadata
		var content, tagsJSON string
		if err := rows.Scan(&m.ID, &content, &m.Checksum, &tagsJSON, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("notestore: scan: %w", err)
		}
		m.Preview = preview(content)
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
		m.Tags = nonNil(m.Tags)
		out = append(out, m)
	}
	return out, rows.Err()
}

func preview(content string) string {
	content = strings.TrimSpace(content)
	// Truncate on a rune boundary so multi-byte text is never split.
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen])
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
