package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()

	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: info=%s, func=%s", info.DriverName, DriverName())
	}
	if info.DriverType != DriverType() {
		t.Errorf("DriverType mismatch: info=%s, func=%s", info.DriverType, DriverType())
	}
	if info.IsCGO != IsCGO() {
		t.Errorf("IsCGO mismatch: info=%v, func=%v", info.IsCGO, IsCGO())
	}
	if info.Package == "" {
		t.Error("Package should not be empty")
	}
}

func TestDriverTypeConsistency(t *testing.T) {
	switch DriverType() {
	case "purego":
		if IsCGO() || DriverName() != "sqlite" {
			t.Errorf("purego driver: IsCGO=%v name=%q", IsCGO(), DriverName())
		}
	case "cgo":
		if !IsCGO() || DriverName() != "sqlite3" {
			t.Errorf("cgo driver: IsCGO=%v name=%q", IsCGO(), DriverName())
		}
	default:
		t.Errorf("unknown driver type: %s", DriverType())
	}
}

func TestOpenAndReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "works.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE works (work INTEGER PRIMARY KEY, abbreviation TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO works (work, abbreviation) VALUES (?, ?)`, 69, "Aud."); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	rodb, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer rodb.Close()

	var abbr string
	if err := rodb.QueryRow(`SELECT abbreviation FROM works WHERE work = 69`).Scan(&abbr); err != nil {
		t.Fatalf("query: %v", err)
	}
	if abbr != "Aud." {
		t.Errorf("abbreviation = %q, want %q", abbr, "Aud.")
	}

	if _, err := rodb.Exec(`INSERT INTO works (work, abbreviation) VALUES (70, 'Adul.amic.')`); err == nil {
		t.Error("write through read-only handle succeeded")
	}
}

func TestWithTx(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE runs (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO runs (id) VALUES ('a')`)
		return err
	}); err != nil {
		t.Fatalf("WithTx() error: %v", err)
	}

	boom := errors.New("boom")
	err = WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO runs (id) VALUES ('b')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("WithTx() error = %v, want %v", err, boom)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1 after rollback", n)
	}
}
