// Package storage provides SQLite persistence for pingwatch.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/pingwatch/internal/util"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*DB, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB, path: path}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS offline_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			ip TEXT NOT NULL,
			offline_at DATETIME NOT NULL,
			online_at DATETIME,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offline_events_ip_time ON offline_events(ip, offline_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_offline_events_created ON offline_events(created_at)`,

		`CREATE TABLE IF NOT EXISTS devices (
			ip TEXT PRIMARY KEY,
			hostname TEXT,
			mac TEXT,
			vendor TEXT,
			status TEXT NOT NULL,
			first_seen DATETIME NOT NULL,
			last_seen DATETIME NOT NULL,
			last_status_change DATETIME,
			consecutive_failures INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}

	// Databases created before run IDs were recorded lack the column; the
	// error for an existing column is expected.
	migrations := []string{
		"ALTER TABLE offline_events ADD COLUMN run_id TEXT",
	}
	for _, m := range migrations {
		db.Exec(m)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
