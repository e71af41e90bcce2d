//go:build cgo_sqlite

package sqliteexternal

import (
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
)

// Names core/sqlite reports for the ledger and SQLite work tables when
// built with -tags cgo_sqlite.
const (
	DriverName    = "sqlite3"
	DriverType    = "cgo"
	DriverPackage = "github.com/mattn/go-sqlite3"
)
