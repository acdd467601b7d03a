package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/textkit/textkit/internal/chunkmerge"
)

// LexiconBackend selects how the primary_id -> byte_offset mapping (spec
// 6's lexicon.index) is persisted. The flat backend is spec 6 exactly;
// the sqlite backend is an alternate persistence format, selected the
// same way internal/cache.Variant selects an eviction policy.
type LexiconBackend string

const (
	LexiconBackendFlat   LexiconBackend = "flat" // default: spec 6's lexicon.index
	LexiconBackendSQLite LexiconBackend = "sqlite"
)

const lexiconSQLiteFileName = "lexicon.sqlite3"

// lexiconSQLiteExists reports whether dir was built with the sqlite
// lexicon backend, so Open can pick the matching reader without the
// caller having to repeat the build-time backend choice.
func lexiconSQLiteExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, lexiconSQLiteFileName))
	return err == nil
}

// writeLexiconSQLite is the sqlite-backend counterpart of writeLexicon:
// one row per primary key in a fresh database at path, same
// primary_id/offset pair the flat file stores as text.
func writeLexiconSQLite(path string, entries []chunkmerge.LexiconEntry) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening lexicon database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE lexicon (
		primary_id INTEGER PRIMARY KEY,
		offset     INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating lexicon table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting lexicon transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO lexicon (primary_id, offset) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing lexicon insert: %w", err)
	}
	for _, e := range entries {
		if _, err := stmt.Exec(e.PrimaryID, e.Offset); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("inserting lexicon row for primary_id %d: %w", e.PrimaryID, err)
		}
	}
	stmt.Close()
	return tx.Commit()
}

// readLexiconOffsetsSQLite is the sqlite-backend counterpart of
// readLexiconOffsets.
func readLexiconOffsetsSQLite(path string) (map[uint64]int64, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening lexicon database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT primary_id, offset FROM lexicon`)
	if err != nil {
		return nil, fmt.Errorf("querying lexicon table: %w", err)
	}
	defer rows.Close()

	offsets := make(map[uint64]int64)
	for rows.Next() {
		var pk uint64
		var off int64
		if err := rows.Scan(&pk, &off); err != nil {
			return nil, fmt.Errorf("scanning lexicon row: %w", err)
		}
		offsets[pk] = off
	}
	return offsets, rows.Err()
}
