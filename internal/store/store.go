// Package store provides the embedded SQLite persistence layer for the
// bookshelf catalog and the durable download queue.
//
// The database runs in embedded mode with WAL so the UI layer can read
// concurrently while the download driver writes. Every method is atomic
// with respect to the row it touches: each call is a single SQL
// statement (or a short transaction), so concurrent writers such as the
// reconciler and a completing download never race on the same row.
//
// Schema: cloud_items, local_items, sync_folders, download_queue, each
// with a unique constraint on its natural key (remote_file_id,
// file_path, folder_id, remote_file_id respectively).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection for the bookshelf database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the bookshelf database at path.
// Call InitSchema before first use and Close when done.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL lets the reconciler and UI read while a download writes;
	// busy_timeout covers the brief writer overlap.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the filesystem location of the database file.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call on every launch.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cloud_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_file_id TEXT NOT NULL UNIQUE,
		remote_folder_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER,
		remote_modified_time TEXT,
		thumbnail TEXT,
		local_path TEXT,
		download_status TEXT NOT NULL DEFAULT 'pending',
		download_progress REAL NOT NULL DEFAULT 0,
		title TEXT,
		author TEXT,
		favorite INTEGER NOT NULL DEFAULT 0,
		last_opened TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS local_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL UNIQUE,
		original_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER,
		thumbnail TEXT,
		title TEXT,
		author TEXT,
		favorite INTEGER NOT NULL DEFAULT 0,
		last_opened TEXT,
		imported_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder_id TEXT NOT NULL UNIQUE,
		folder_name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		last_synced_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS download_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_file_id TEXT NOT NULL UNIQUE,
		file_name TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'queued',
		error_message TEXT,
		download_progress REAL NOT NULL DEFAULT 0,
		queued_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cloud_items_folder ON cloud_items(remote_folder_id);
	CREATE INDEX IF NOT EXISTS idx_cloud_items_status ON cloud_items(download_status);
	CREATE INDEX IF NOT EXISTS idx_local_items_original ON local_items(original_path);
	CREATE INDEX IF NOT EXISTS idx_sync_folders_active ON sync_folders(active);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON download_queue(status);

	-- Composite index for the next-queued query
	CREATE INDEX IF NOT EXISTS idx_queue_dispatch
	    ON download_queue(status, priority, queued_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullString converts a nullable SQL string to a string pointer.
func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullInt64 converts a nullable SQL integer to an int64 pointer.
func nullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// parseStoredTime parses a timestamp written by now().
func parseStoredTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// now returns the current time formatted for storage.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
