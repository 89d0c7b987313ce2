package storage

import (
	"fmt"
	"strings"
	"time"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// Config selects and tunes the storage backend.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	// AutoMigrate creates the schema on open.
	AutoMigrate bool
}

// DefaultConfig returns default connection pool settings for the driver.
func DefaultConfig(driver string) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
	if isSQLite(driver) {
		// One connection keeps ":memory:" databases alive and avoids SQLITE_BUSY.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}
	return cfg
}

func isSQLite(driver string) bool {
	return driver == DriverSQLite || driver == DriverSQLite3
}

// Validate checks the driver name and DSN.
func (c Config) Validate() error {
	switch strings.ToLower(c.Driver) {
	case "", DriverMemory:
		return nil
	case DriverPostgres, DriverSQLite, DriverSQLite3:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("storage: dsn is required for driver %q", c.Driver)
		}
		return nil
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Driver)
	}
}
