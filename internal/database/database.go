// Package database opens the SQLite file that holds invocation history.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/database/migrations"
)

// DB is the history database.
type DB struct {
	*sql.DB
	path   string
	wal    bool
	mu     sync.Mutex
	closed bool
}

// Open opens (creating if needed) the database at cfg.Path and brings its
// schema up to date.
func Open(cfg *config.HistoryConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: pragmas apply per connection and SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}

	applied, err := migrations.Run(ctx, sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if applied > 0 {
		log.Info().Str("path", cfg.Path).Int("migrations", applied).Msg("History database updated")
	}

	return &DB{
		DB:   sqlDB,
		path: cfg.Path,
		wal:  cfg.WALMode,
	}, nil
}

// dsn builds a modernc.org/sqlite connection string carrying the pragmas.
func dsn(cfg *config.HistoryConfig) string {
	pragmas := []string{
		"busy_timeout(" + strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10) + ")",
		"temp_store(memory)",
	}
	if cfg.WALMode {
		pragmas = append(pragmas, "journal_mode(wal)", "synchronous(normal)")
	}
	return cfg.Path + "?" + url.Values{"_pragma": pragmas}.Encode()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SchemaVersion returns the applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return migrations.Version(ctx, db.DB)
}

// Close checkpoints the WAL and closes the database. It is safe to call twice.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.wal {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}

	return db.DB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
