// Package database opens the server's database connection with a pool policy
// taken from the concurrency substrate.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgpassfile"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"                  // MySQL/MariaDB
	_ "github.com/microsoft/go-mssqldb"                 // MSSQL
	_ "github.com/tursodatabase/libsql-client-go/libsql" // libSQL/Turso
	_ "modernc.org/sqlite"                              // SQLite

	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/paths"
)

// ErrNotReady is returned by operations on a closed database
var ErrNotReady = errors.New("database not ready")

// pingTimeout bounds the connectivity check in Open
var pingTimeout = 5 * time.Second

// normalizeDriver maps user-friendly config values to actual Go driver names
func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite2", "sqlite3":
		return "sqlite"
	case "libsql", "turso":
		return "libsql"
	case "postgres", "pgsql", "postgresql", "pgx":
		return "pgx"
	case "mysql", "mariadb":
		return "mysql"
	case "mssql", "sqlserver":
		return "sqlserver"
	default:
		return driver
	}
}

// Registered reports whether the driver named in config is linked into the
// binary. It backs the fail-fast check of the multi-client database patch.
func Registered(driver string) bool {
	name := normalizeDriver(driver)
	if name == "" {
		return false
	}
	return slices.Contains(sql.Drivers(), name)
}

// DB represents a single database connection pool
type DB struct {
	db       *sql.DB
	driver   string
	poolSize int
	mu       sync.RWMutex
	ready    bool
}

// Open connects to the configured database. The pool holds a single
// connection unless the substrate's database policy is cooperative.
// Postgres passwords missing from the DSN are looked up in the pgpass file
// named by PGPASSFILE in env.
func Open(cfg config.DatabaseConfig, sub concurrency.Substrate, env environ.Env) (*DB, error) {
	driver := normalizeDriver(cfg.Driver)
	if !Registered(driver) {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, libsql, postgres, mysql, mssql)", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s requires DSN in config", driver)
	}

	db := &DB{driver: driver}

	var err error
	switch driver {
	case "pgx":
		var pc *pgx.ConnConfig
		pc, err = pgConfig(cfg.DSN, env)
		if err != nil {
			return nil, err
		}
		db.db = stdlib.OpenDB(*pc)
	default:
		db.db, err = sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
		}
	}

	// Configure connection pool
	db.poolSize = sub.PoolSize(cfg.MaxOpen)
	db.db.SetMaxOpenConns(db.poolSize)
	db.db.SetMaxIdleConns(min(max(cfg.MaxIdle, 1), db.poolSize))
	db.db.SetConnMaxLifetime(time.Duration(cfg.Lifetime) * time.Second)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.db.PingContext(ctx); err != nil {
		db.db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// busy_timeout allows concurrent access without immediate "database locked" errors
	if driver == "sqlite" {
		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.db.Exec(pragma); err != nil {
				db.db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	db.ready = true
	return db, nil
}

// pgConfig parses a postgres DSN and fills in the password from the pgpass
// file when the DSN has none.
func pgConfig(dsn string, env environ.Env) (*pgx.ConnConfig, error) {
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if pc.Password != "" {
		return pc, nil
	}

	passfile := env.Get(paths.CredentialsEnv)
	if passfile == "" {
		return pc, nil
	}
	pf, err := pgpassfile.ReadPassfile(passfile)
	if err != nil {
		// A missing credentials file is not fatal; the server may use trust auth.
		return pc, nil
	}

	host := pc.Host
	if strings.HasPrefix(host, "/") {
		host = "localhost"
	}
	pc.Password = pf.FindPassword(host, strconv.Itoa(int(pc.Port)), pc.Database, pc.User)
	return pc, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.db != nil {
		db.ready = false
		return db.db.Close()
	}
	return nil
}

// IsReady returns true if database is ready
func (db *DB) IsReady() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.ready
}

// IsRemote returns true if using a remote database (not local SQLite)
func (db *DB) IsRemote() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.driver != "" && db.driver != "sqlite"
}

// PoolSize returns the maximum number of open connections
func (db *DB) PoolSize() int {
	return db.poolSize
}

// QueryRow executes a query that returns a single row
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.db.QueryRowContext(ctx, query, args...)
}

// versionQueries select the server version string for each driver
var versionQueries = map[string]string{
	"pgx":       "SELECT version()",
	"mysql":     "SELECT VERSION()",
	"sqlserver": "SELECT @@VERSION",
	"sqlite":    "SELECT sqlite_version()",
	"libsql":    "SELECT sqlite_version()",
}

// ServerVersion runs a round-trip query and returns the version reported by
// the database server.
func (db *DB) ServerVersion(ctx context.Context) (string, error) {
	if !db.IsReady() {
		return "", ErrNotReady
	}
	q, ok := versionQueries[db.driver]
	if !ok {
		return "", fmt.Errorf("no version query for %s", db.driver)
	}
	var v string
	if err := db.QueryRow(ctx, q).Scan(&v); err != nil {
		return "", fmt.Errorf("query %s version: %w", db.driver, err)
	}
	return v, nil
}

// Driver returns the database driver name
func (db *DB) Driver() string {
	return db.driver
}

// SQL returns the underlying *sql.DB connection
func (db *DB) SQL() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.db
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.ready || db.db == nil {
		return ErrNotReady
	}
	return db.db.PingContext(ctx)
}
