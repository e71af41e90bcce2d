// Package sqlite selects the SQLite driver used for the run ledger and for
// work tables stored in SQLite files.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite
//   - -tags cgo_sqlite (CGO_ENABLED=1): mattn/go-sqlite3 via contrib/sqlite-external
//
// Use Open() instead of sql.Open() to ensure the correct driver is used.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// DriverName returns the SQL driver name to use.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database using the selected driver.
func Open(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; the ledger writes from one goroutine
	// and a single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open("file:" + path + "?mode=ro")
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
