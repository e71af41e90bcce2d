// Package sqliteexternal provides the optional CGO SQLite driver.
//
// To use the CGO driver (github.com/mattn/go-sqlite3) for the run ledger
// and SQLite work tables, build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/stephanus
//
// Without the tag, stephanus uses modernc.org/sqlite through core/sqlite.
package sqliteexternal
