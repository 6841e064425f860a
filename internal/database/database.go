// Package database persists assets, recordings and settings in SQLite.
// Writes are serialized through a mutex on top of WAL mode, which keeps
// "database is locked" errors away under concurrent uploads.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"gallery-server/internal/logging"
	"gallery-server/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrDuplicate signals that an insert collided with the per-album content
// uniqueness constraint: the same bytes already exist in that album.
var ErrDuplicate = errors.New("duplicate content in album")

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Database manages all persistence for the gallery server.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New creates a new Database instance.
// dbPath is the full path to the database file; the parent directory must
// already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnosePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// WAL plus busy_timeout keeps concurrent upload transactions from
	// tripping over each other.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- Media assets: one row per stored original.
	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		album_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		original_name TEXT NOT NULL,
		stored_path TEXT NOT NULL UNIQUE,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL,
		content_id TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		orientation INTEGER NOT NULL DEFAULT 1,
		rotation INTEGER NOT NULL DEFAULT 0,
		content_generation INTEGER NOT NULL DEFAULT 1,
		public_token TEXT NOT NULL UNIQUE,
		display_order INTEGER NOT NULL DEFAULT 0,
		derivatives_ready INTEGER NOT NULL DEFAULT 0,
		web_video_ready INTEGER NOT NULL DEFAULT 0,
		taken_at INTEGER,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		-- Duplicate uploads are rejected by the database, not by a
		-- read-then-write check, so racing uploads cannot both land.
		UNIQUE(checksum, album_id)
	);

	CREATE INDEX IF NOT EXISTS idx_assets_album ON assets(album_id, display_order);
	CREATE INDEX IF NOT EXISTS idx_assets_checksum ON assets(checksum);
	CREATE INDEX IF NOT EXISTS idx_assets_content_id ON assets(album_id, content_id) WHERE content_id != '';
	CREATE INDEX IF NOT EXISTS idx_assets_pending ON assets(derivatives_ready) WHERE derivatives_ready = 0;

	-- Slideshow voice recordings, one per album take.
	CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		album_id INTEGER NOT NULL,
		stored_path TEXT NOT NULL UNIQUE,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		public_token TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_album ON recordings(album_id);

	-- Install-local settings, e.g. the token signing secret.
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// Ping verifies the database still answers. Used by readiness probes.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// isConstraintViolation reports whether err is a SQLite uniqueness
// constraint failure.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// diagnosePermissions checks database directory and file permissions.
func diagnosePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if dbInfo, err := os.Stat(dbPath); err == nil {
		if dbInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}
	return nil
}
