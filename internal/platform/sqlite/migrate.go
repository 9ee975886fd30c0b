package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationInfo describes the outcome of ApplyMigrations.
type MigrationInfo struct {
	CurrentVersion uint
	FinalVersion   uint
	Applied        bool
	Dirty          bool
}

// BuildMigrateURL builds a golang-migrate URL for dbPath:
// "sqlite:///abs/path" on Unix and "sqlite:///C:/path" on Windows.
func BuildMigrateURL(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("sqlite: absolute path: %w", err)
	}
	urlPath := filepath.ToSlash(absPath)
	if runtime.GOOS == "windows" && len(urlPath) >= 2 && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	return "sqlite://" + urlPath, nil
}

// ApplyMigrations brings the database file at dbPath to the latest embedded schema.
// It opens its own connection, which golang-migrate closes. Calling it on an up to
// date database is a no-op.
func ApplyMigrations(dbPath string) (MigrationInfo, error) {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return MigrationInfo{}, err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("sqlite: migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		_ = src.Close()
		return MigrationInfo{}, fmt.Errorf("sqlite: migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	return up(m)
}

// migrateDB applies the embedded schema to an open database. The migrate instance is
// not closed, since closing it would close db.
func migrateDB(db *sql.DB) (MigrationInfo, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("sqlite: migrations source: %w", err)
	}
	defer func() { _ = src.Close() }()

	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("sqlite: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("sqlite: migrate instance: %w", err)
	}
	return up(m)
}

func up(m *migrate.Migrate) (MigrationInfo, error) {
	var info MigrationInfo
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return info, fmt.Errorf("sqlite: current version: %w", err)
	}
	info.CurrentVersion, info.FinalVersion, info.Dirty = current, current, dirty
	if dirty {
		return info, fmt.Errorf("sqlite: database is dirty at version %d", current)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	info.Applied = true
	if final, _, err := m.Version(); err == nil {
		info.FinalVersion = final
	}
	return info, nil
}

// ResetMigrations rolls back every migration of the database file at dbPath.
func ResetMigrations(dbPath string) error {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("sqlite: migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: reset migrations: %w", err)
	}
	return nil
}
