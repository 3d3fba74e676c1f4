// Package database implements the article store on SQLite: newsgroups,
// committed articles and the outbound spool. It is the single owner of
// persisted state; every component reads and writes through its
// transactional methods.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned by point lookups when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint. For articles this is the designed dedup path, not a fault.
	ErrDuplicate = errors.New("duplicate entry")
)

// Database wraps the SQLite connection pool.
type Database struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS newsgroups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	newsgroup_id INTEGER NOT NULL REFERENCES newsgroups(id) ON DELETE CASCADE,
	from_header TEXT NOT NULL,
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	message_id TEXT NOT NULL UNIQUE,
	refs TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	reply_to TEXT NOT NULL DEFAULT '',
	organization TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_articles_group ON articles(newsgroup_id, id);
CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at);

CREATE TABLE IF NOT EXISTS spool (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	destination TEXT NOT NULL,
	data BLOB NOT NULL,
	delivery_notification INTEGER NOT NULL DEFAULT 0,
	lifetime INTEGER NOT NULL,
	hash TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	error_log TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spool_hash ON spool(hash);
`

// Open opens (creating if necessary) the store at the given SQLite path or
// DSN and ensures the schema. WAL mode and foreign keys are enabled through
// the DSN so every pooled connection gets them.
func Open(dbURL string) (*Database, error) {
	dsn := dbURL
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbURL, err)
	}

	// A single in-memory database per pool; also keeps SQLite writer
	// contention low for the file case.
	if strings.Contains(dbURL, ":memory:") {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("Article store ready at %s", dbURL)
	return &Database{db: db}, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// isUniqueViolation checks for a SQLite uniqueness constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
