package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// AccessMode is the SQLite open mode.
type AccessMode string

const (
	// AccessModeReadWrite opens an existing or new database for reading and writing (default)
	AccessModeReadWrite AccessMode = "rw"
	// AccessModeReadOnly opens the database read-only
	AccessModeReadOnly AccessMode = "ro"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DBOptions configures a SQLite connection pool.
type DBOptions struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	// PingTimeout bounds the connectivity check done on open
	PingTimeout time.Duration
	WALMode     bool
	ForeignKeys bool
	// BusyTimeout is how long a connection waits on a locked database
	BusyTimeout time.Duration
	AccessMode  AccessMode
}

// DefaultDBOptions returns settings for an embedded catalog: few connections, WAL and a busy timeout.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		AccessMode:      AccessModeReadWrite,
	}
}

// NewDB opens the database at dbPath with DefaultDBOptions.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewInMemoryDB opens an in-memory database. The pool is limited to one connection,
// since every connection to ":memory:" sees its own database.
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = 0
	opts.ConnMaxIdleTime = 0
	return NewDBWithOptions(ctx, MemoryPath, opts)
}

// NewDBWithOptions opens the database at dbPath, creating its directory when needed.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dbPath != MemoryPath && opts.AccessMode != AccessModeReadOnly {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if err := applyPragmaSettings(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	return db, nil
}

// buildDSN passes per-connection pragmas through the DSN so that every pooled
// connection gets them, not only the one used by applyPragmaSettings.
func buildDSN(dbPath string, opts DBOptions) string {
	params := url.Values{}
	if opts.AccessMode == AccessModeReadOnly {
		params.Set("mode", string(AccessModeReadOnly))
	}
	if opts.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.ForeignKeys {
		params.Add("_pragma", "foreign_keys(1)")
	}
	if len(params) == 0 {
		return dbPath
	}
	prefix := dbPath
	if opts.AccessMode == AccessModeReadOnly && !strings.HasPrefix(dbPath, "file:") {
		prefix = "file:" + dbPath
	}
	return prefix + "?" + params.Encode()
}

func applyPragmaSettings(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := make([]string, 0, 2)
	if opts.WALMode && opts.AccessMode != AccessModeReadOnly {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}
