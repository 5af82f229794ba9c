package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// LatestMigrationVersion is the schema version this binary ships. It
// backs the downgrade check: a database ahead of this version refuses
// to open.
//
// NOTE: bump this whenever a migration is added.
const LatestMigrationVersion uint = 1

// MigrationTarget selects which version applyMigrations drives the
// database to, given the current version and the newest version the
// driver knows about.
type MigrationTarget func(mig *migrate.Migrate,
	currentDBVersion int, maxMigrationVersion uint) error

// TargetLatest migrates all the way up.
var TargetLatest = func(mig *migrate.Migrate, _ int, _ uint) error {
	return mig.Up()
}

// ErrMigrationDowngrade is returned when the database schema is newer
// than what this binary understands.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

type migrateOptions struct {
	latestVersion uint
}

// MigrateOpt tweaks how migrations are applied.
type MigrateOpt func(*migrateOptions)

// WithLatestVersion overrides the version the downgrade check compares
// against. Only tests should need this.
func WithLatestVersion(version uint) MigrateOpt {
	return func(o *migrateOptions) {
		o.latestVersion = version
	}
}

// ExecuteMigrations drives the embedded schema migrations to the given
// target version.
func (s *Store) ExecuteMigrations(target MigrationTarget,
	optFuncs ...MigrateOpt) error {

	opts := &migrateOptions{latestVersion: LatestMigrationVersion}
	for _, optFunc := range optFuncs {
		optFunc(opts)
	}

	driver, err := sqlite_migrate.WithInstance(
		s.DB(), &sqlite_migrate.Config{},
	)
	if err != nil {
		return fmt.Errorf("error creating sqlite migration driver: %w",
			err)
	}

	return applyMigrations(
		sqlSchemas, driver, "migrations", "sqlite", target, opts, s.log,
	)
}

// pendingMigration reports whether an already initialised database sits
// below LatestMigrationVersion. A fresh database reports false, so
// first-run setup is not treated as an upgrade.
func (s *Store) pendingMigration() (bool, error) {
	driver, err := sqlite_migrate.WithInstance(
		s.DB(), &sqlite_migrate.Config{},
	)
	if err != nil {
		return false, fmt.Errorf("error creating sqlite migration "+
			"driver: %w", err)
	}

	version, _, err := driver.Version()
	if err != nil {
		return false, fmt.Errorf("unable to get current db version: %w",
			err)
	}

	return version != database.NilVersion &&
		version < int(LatestMigrationVersion), nil
}

// migrationLogger adapts slog to the migrate.Logger interface.
type migrationLogger struct {
	log *slog.Logger
}

// Printf implements migrate.Logger.
func (m *migrationLogger) Printf(format string, v ...any) {
	m.log.Info(fmt.Sprintf(strings.TrimRight(format, "\n"), v...))
}

// Verbose implements migrate.Logger.
func (m *migrationLogger) Verbose() bool {
	return true
}

// applyMigrations runs the migration files found under path in fsys
// against the given driver, after checking the database is neither
// dirty nor ahead of the newest known version.
func applyMigrations(fsys fs.FS, driver database.Driver, path, dbName string,
	targetVersion MigrationTarget, opts *migrateOptions,
	log *slog.Logger) error {

	migrateFileServer, err := httpfs.New(http.FS(fsys), path)
	if err != nil {
		return err
	}

	sqlMigrate, err := migrate.NewWithInstance(
		"migrations", migrateFileServer, dbName, driver,
	)
	if err != nil {
		return err
	}

	migrationVersion, dirty, err := sqlMigrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration "+
			"version: %w", err)
	}

	// A dirty database means an earlier migration stopped halfway.
	// Running more migrations on top would compound the damage, so
	// insist on manual repair.
	if dirty {
		return fmt.Errorf("database is in a dirty state at version "+
			"%v, manual intervention required", migrationVersion)
	}

	// Down migrations can drop data, so a database that is ahead of
	// this binary is never migrated implicitly.
	if migrationVersion > opts.latestVersion {
		return fmt.Errorf("%w: database version is newer than the "+
			"latest migration version, preventing downgrade: "+
			"db_version=%v, latest_migration_version=%v",
			ErrMigrationDowngrade, migrationVersion,
			opts.latestVersion)
	}

	currentDBVersion, _, err := driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get current db version: %w", err)
	}
	log.InfoContext(
		context.Background(), "Attempting to apply migration(s)",
		"current_db_version", currentDBVersion,
		"latest_migration_version", opts.latestVersion,
	)

	sqlMigrate.Log = &migrationLogger{log}

	err = targetVersion(sqlMigrate, currentDBVersion, opts.latestVersion)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	currentDBVersion, _, err = driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get current db version: %w", err)
	}
	log.InfoContext(
		context.Background(), "Database version after migration",
		"current_db_version", currentDBVersion,
	)

	return nil
}

// backupSqliteDatabase snapshots the database file next to the
// original, using VACUUM INTO so the copy is consistent even with WAL
// enabled.
func backupSqliteDatabase(srcDB *sql.DB, dbFullFilePath string,
	log *slog.Logger) error {

	if srcDB == nil {
		return fmt.Errorf("backup source database is nil")
	}

	backupFullFilePath := fmt.Sprintf(
		"%s.%d.backup", dbFullFilePath, time.Now().UnixNano(),
	)

	log.InfoContext(
		context.Background(), "Creating backup of database file",
		"source", dbFullFilePath,
		"backup", backupFullFilePath,
	)

	stmt, err := srcDB.Prepare("VACUUM INTO ?;")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(backupFullFilePath)

	return err
}
