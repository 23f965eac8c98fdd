package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
//
// document_chunks is keyed by (id, file_path, processing_strategy): chunk ids
// are stable per section, so the same document reprocessed with the same
// strategy replaces its own rows instead of accumulating duplicates.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			chunk_type TEXT NOT NULL,
			section TEXT,
			page_number INTEGER,
			file_path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			processing_strategy TEXT NOT NULL,
			table_count INTEGER NOT NULL DEFAULT 0,
			content_length INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id, file_path, processing_strategy)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_file
			ON document_chunks(file_path, processing_strategy);`,
		`CREATE TABLE IF NOT EXISTS extracted_tables (
			id TEXT NOT NULL,
			title TEXT,
			table_data TEXT NOT NULL,
			headers TEXT,
			row_count INTEGER NOT NULL DEFAULT 0,
			column_count INTEGER NOT NULL DEFAULT 0,
			table_type TEXT,
			section TEXT,
			page_number INTEGER,
			source_chunk_id TEXT,
			file_path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id, file_path)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_extracted_tables_chunk
			ON extracted_tables(source_chunk_id, file_path);`,
		`CREATE TABLE IF NOT EXISTS processing_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			processing_strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			total_tables INTEGER NOT NULL DEFAULT 0,
			processing_time REAL NOT NULL DEFAULT 0,
			was_cached INTEGER NOT NULL DEFAULT 0,
			reused_existing INTEGER NOT NULL DEFAULT 0,
			errors TEXT,
			warnings TEXT,
			document_metadata TEXT,
			processing_metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processing_results_file
			ON processing_results(file_path, processing_strategy);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
