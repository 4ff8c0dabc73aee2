package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the files table if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// database/sql pools connections; a single writer avoids SQLITE_BUSY on inserts.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		size_bytes INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		generated_by TEXT
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create files table: %w", err)
	}

	return db, nil
}
