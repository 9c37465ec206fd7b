// Package testutil provides shared test helpers for setting up staging
// directories and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/ravnholt/voxnote/internal/notestore"
	"github.com/ravnholt/voxnote/internal/staging"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *notestore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "voxnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := notestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStaging creates a temporary staging directory with a staging.Store.
func TestStaging(t *testing.T) (string, *staging.Store) {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := staging.NewStore(root, logger)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}
