// Package ledger records corpus runs in a SQLite database: one row per
// run, per document and per diagnostic. Re-running over the same corpus
// leaves a history that can be compared by document digest.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/sqlite"
	"github.com/FocuswithJustin/stephanus/internal/corpus"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	pass        TEXT NOT NULL,
	input       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	documents   INTEGER NOT NULL DEFAULT 0,
	written     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	wrapped     INTEGER NOT NULL DEFAULT 0,
	rejected    INTEGER NOT NULL DEFAULT 0,
	aborted     INTEGER NOT NULL DEFAULT 0,
	marked      INTEGER NOT NULL DEFAULT 0,
	amended     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS documents (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	before_digest TEXT NOT NULL DEFAULT '',
	after_digest  TEXT NOT NULL DEFAULT '',
	wrapped     INTEGER NOT NULL DEFAULT 0,
	rejected    INTEGER NOT NULL DEFAULT 0,
	aborted     INTEGER NOT NULL DEFAULT 0,
	marked      INTEGER NOT NULL DEFAULT 0,
	amended     INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, name)
);
CREATE TABLE IF NOT EXISTS diagnostics (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	document   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	path       TEXT NOT NULL,
	headword   TEXT NOT NULL DEFAULT '',
	token      TEXT NOT NULL DEFAULT '',
	identifier TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS diagnostics_run ON diagnostics(run_id, document);
`

// Ledger is an open run database. It implements corpus.Recorder.
type Ledger struct {
	db *sql.DB
}

var _ corpus.Recorder = (*Ledger)(nil)

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create ledger schema in %s", path)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// BeginRun inserts the run row.
func (l *Ledger) BeginRun(ctx context.Context, info corpus.RunInfo) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, pass, input, started_at) VALUES (?, ?, ?, ?)`,
		info.ID, string(info.Pass), info.Input, info.Started.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "insert run")
}

// RecordDocument stores one document result with its diagnostics.
func (l *Ledger) RecordDocument(ctx context.Context, runID string, r *corpus.DocumentResult) error {
	var msg string
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return sqlite.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO documents
			(run_id, name, status, before_digest, after_digest, wrapped, rejected, aborted, marked, amended, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Name, string(r.Status), r.Before, r.After,
			r.Wrapped, r.Rejected, r.Aborted, r.Marked, r.Amended, r.Duration.Milliseconds(), msg)
		if err != nil {
			return errors.Wrapf(err, "insert document %s", r.Name)
		}
		if len(r.Diagnostics) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO diagnostics
			(run_id, document, kind, path, headword, token, identifier, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare diagnostics")
		}
		defer stmt.Close()
		for _, d := range r.Diagnostics {
			if _, err := stmt.ExecContext(ctx, runID, r.Name, string(d.Kind), d.Path, d.Headword, d.Token, d.Identifier, d.Reason); err != nil {
				return errors.Wrapf(err, "insert diagnostic for %s", r.Name)
			}
		}
		return nil
	})
}

// FinishRun stores the run totals.
func (l *Ledger) FinishRun(ctx context.Context, s *corpus.Summary) error {
	finished := s.Started.Add(s.Duration).UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `UPDATE runs SET finished_at = ?, documents = ?, written = ?, failed = ?,
		wrapped = ?, rejected = ?, aborted = ?, marked = ?, amended = ? WHERE id = ?`,
		finished, s.Documents, s.Written, s.Failed, s.Wrapped, s.Rejected, s.Aborted, s.Marked, s.Amended, s.RunID)
	if err != nil {
		return errors.Wrap(err, "update run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("run", s.RunID)
	}
	return nil
}

// Run is a row of the runs table.
type Run struct {
	ID        string
	Pass      string
	Input     string
	Started   time.Time
	Finished  time.Time // zero while the run is open
	Documents int
	Written   int
	Failed    int
	Wrapped   int
	Rejected  int
	Aborted   int
	Marked    int
	Amended   int
}

// Runs lists the recorded runs, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, pass, input, started_at, COALESCE(finished_at, ''),
		documents, written, failed, wrapped, rejected, aborted, marked, amended
		FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Pass, &r.Input, &started, &finished,
			&r.Documents, &r.Written, &r.Failed, &r.Wrapped, &r.Rejected, &r.Aborted, &r.Marked, &r.Amended); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "read runs")
}

// DocumentRow is a row of the documents table.
type DocumentRow struct {
	Name    string
	Status  string
	Before  string
	After   string
	Wrapped int
	Error   string
}

// Documents lists the documents of a run by name.
func (l *Ledger) Documents(ctx context.Context, runID string) ([]DocumentRow, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name, status, before_digest, after_digest, wrapped, error
		FROM documents WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query documents")
	}
	defer rows.Close()

	var docs []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Name, &d.Status, &d.Before, &d.After, &d.Wrapped, &d.Error); err != nil {
			return nil, errors.Wrap(err, "scan document")
		}
		docs = append(docs, d)
	}
	return docs, errors.Wrap(rows.Err(), "read documents")
}

// DiagnosticCounts returns the number of diagnostics of a run per kind.
func (l *Ledger) DiagnosticCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM diagnostics WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query diagnostics")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, errors.Wrap(err, "scan diagnostics")
		}
		counts[kind] = n
	}
	return counts, errors.Wrap(rows.Err(), "read diagnostics")
}
