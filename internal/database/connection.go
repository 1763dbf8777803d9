package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the relational store and initializes the schema.
// dbType is "sqlite" or "postgres"; dsn is a file path for sqlite and a
// connection string for postgres.
func Connect(dbType, dsn string) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	switch dbType {
	case "sqlite", "":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err = sqlx.Connect("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite does not support multiple writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "postgres":
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown DB_TYPE %q", dbType)
	}

	if err := initializeSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

// initializeSchema creates the core tables if they don't exist.
func initializeSchema(db *sqlx.DB) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS vocab_items (
			id %s,
			word TEXT NOT NULL,
			definition TEXT NOT NULL,
			example TEXT DEFAULT '',
			collocations TEXT DEFAULT '',
			part_of_speech TEXT DEFAULT '',
			level INTEGER DEFAULT 5,
			frequency_score REAL DEFAULT 0,
			is_core BOOLEAN DEFAULT FALSE,
			tags TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(word)
		)`, serial),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS memory_records (
			id %s,
			user_id TEXT NOT NULL,
			vocab_id INTEGER NOT NULL,
			track TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'NEW',
			state TEXT NOT NULL DEFAULT 'New',
			stability REAL NOT NULL DEFAULT 0,
			difficulty REAL NOT NULL DEFAULT 0,
			reps INTEGER NOT NULL DEFAULT 0,
			lapses INTEGER NOT NULL DEFAULT 0,
			"interval" INTEGER NOT NULL DEFAULT 0,
			last_review_at TIMESTAMP,
			next_review_at TIMESTAMP,
			due_date TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (vocab_id) REFERENCES vocab_items(id),
			UNIQUE(user_id, vocab_id, track)
		)`, serial),
		`
		CREATE TABLE IF NOT EXISTS drill_cache (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			payload TEXT NOT NULL,
			is_consumed BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_due
			ON memory_records(user_id, track, next_review_at)`,
		`CREATE INDEX IF NOT EXISTS idx_drill_cache_lookup
			ON drill_cache(user_id, mode, is_consumed, expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
