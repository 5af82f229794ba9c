package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteConfig holds the settings for the SQLite database backend.
type SqliteConfig struct {
	// DatabaseFileName is the full file path where the database is stored.
	DatabaseFileName string

	// SkipMigrations skips applying schema migrations when the store is
	// opened.
	SkipMigrations bool

	// SkipMigrationDBBackup skips the file backup that is normally taken
	// before a pending migration is applied.
	SkipMigrationDBBackup bool
}

// SqliteStore is a database store implementation that uses a sqlite backend.
type SqliteStore struct {
	cfg *SqliteConfig

	*Store
}

// DefaultDBPath returns the default path for the shousai database.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".shousai", "shousai.db"), nil
}

// OpenSQLite opens a SQLite database connection with WAL mode enabled and
// appropriate pragmas for performance and reliability.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	// Ensure the directory exists.
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open the database with foreign keys and WAL mode enabled via URI.
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer, multiple readers).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Verify connection and apply additional pragmas.
	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}

// configurePragmas sets additional SQLite pragmas for optimal performance.
func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		// Synchronous mode: NORMAL provides good durability with better
		// performance than FULL.
		"PRAGMA synchronous = NORMAL",

		// Cache size: Negative value is in KiB, 64MB cache.
		"PRAGMA cache_size = -65536",

		// Memory-mapped I/O: 256MB for faster reads.
		"PRAGMA mmap_size = 268435456",

		// Temp store: Keep temporary tables in memory.
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// NewSqliteStore opens (creating it if needed) the SQLite database named by
// the config and returns a SqliteStore wrapping it. Unless disabled, all
// pending schema migrations are applied, with a file backup taken first
// whenever an existing database is about to be upgraded.
func NewSqliteStore(cfg *SqliteConfig, log *slog.Logger) (*SqliteStore, error) {
	sqlDB, err := OpenSQLite(cfg.DatabaseFileName)
	if err != nil {
		return nil, err
	}

	store := &SqliteStore{
		cfg:   cfg,
		Store: NewStore(sqlDB, log),
	}

	if cfg.SkipMigrations {
		return store, nil
	}

	// A fresh database reports no pending migration, so first-run
	// initialisation never triggers a backup of an empty file.
	pending, err := store.pendingMigration()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	if pending && !cfg.SkipMigrationDBBackup {
		err := backupSqliteDatabase(sqlDB, cfg.DatabaseFileName, log)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to back up database: %w",
				err)
		}
	}

	if err := store.ExecuteMigrations(TargetLatest); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return store, nil
}
