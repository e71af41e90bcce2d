package worktable

import (
	"context"
	"database/sql"
	"os"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/sqlite"
)

const worksSchema = `
CREATE TABLE IF NOT EXISTS works (
	author       INTEGER NOT NULL,
	work         INTEGER NOT NULL,
	abbreviation TEXT NOT NULL,
	start_ref    TEXT NOT NULL,
	end_ref      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (author, work)
);
`

// ReadSQLite loads the works table of a SQLite file.
func ReadSQLite(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("table", path)
		}
		return nil, errors.NewIO("stat", path, err)
	}

	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer db.Close()

	return QuerySQLite(db)
}

// QuerySQLite reads the works table from an open database.
func QuerySQLite(db *sql.DB) (*Table, error) {
	rows, err := db.Query(`SELECT author, work, abbreviation, start_ref, end_ref, title FROM works`)
	if err != nil {
		return nil, errors.Wrap(err, "query works")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			author, work            int
			abbr, start, end, title string
		)
		if err := rows.Scan(&author, &work, &abbr, &start, &end, &title); err != nil {
			return nil, errors.Wrap(err, "scan works")
		}
		e, err := parseEntry(itoa(author), itoa(work), abbr, start, end, title)
		if err != nil {
			return nil, errors.Wrapf(err, "work %04d,%03d", author, work)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read works")
	}
	return New(entries)
}

// WriteSQLite creates or replaces the works table in the SQLite file at
// path.
func (t *Table) WriteSQLite(path string) error {
	db, err := sqlite.Open(path)
	if err != nil {
		return errors.NewIO("open", path, err)
	}
	defer db.Close()

	return t.StoreSQLite(db)
}

// StoreSQLite replaces the contents of the works table of db.
func (t *Table) StoreSQLite(db *sql.DB) error {
	return sqlite.WithTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(worksSchema); err != nil {
			return errors.Wrap(err, "create works")
		}
		if _, err := tx.Exec(`DELETE FROM works`); err != nil {
			return errors.Wrap(err, "clear works")
		}
		stmt, err := tx.Prepare(`INSERT INTO works (author, work, abbreviation, start_ref, end_ref, title) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare insert")
		}
		defer stmt.Close()

		for _, e := range t.entries {
			if _, err := stmt.Exec(e.Author, e.Work, e.Abbreviation, e.Start.Canonical(), e.End.Canonical(), e.Title); err != nil {
				return errors.Wrapf(err, "insert %s", e.Key())
			}
		}
		return nil
	})
}

func itoa(n int) string {
	return padded(n, 1)
}
