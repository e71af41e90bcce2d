package worktable

import (
	_ "embed"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
)

//go:embed moralia.tsv
var moraliaTSV string

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded Moralia table (authors 0007 and 0094).
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = ReadTSV(strings.NewReader(moraliaTSV))
	})
	return defaultTable, defaultErr
}

// MustDefault is like Default but panics on error.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic("worktable: embedded table: " + err.Error())
	}
	return t
}

// Column names accepted in table headers, keyed by alias.
var headerAliases = map[string]string{
	"author":       "author",
	"author_id":    "author",
	"work":         "work",
	"work_id":      "work",
	"sub_work_id":  "work",
	"abbreviation": "abbreviation",
	"abbr":         "abbreviation",
	"start":        "start",
	"start_ref":    "start",
	"end":          "end",
	"end_ref":      "end",
	"end_boundary": "end",
	"title":        "title",
}

var requiredColumns = []string{"author", "work", "abbreviation", "start", "end"}

// ReadTSV reads a tab-separated table with a header row.
func ReadTSV(r io.Reader) (*Table, error) {
	return readDelimited(r, '\t')
}

// ReadCSV reads a comma-separated table with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	return readDelimited(r, ',')
}

func readDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewValidation("table", "empty table")
	}
	if err != nil {
		return nil, errors.NewParse("table", "header", err.Error())
	}

	index := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canon, ok := headerAliases[key]; ok {
			index[canon] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, errors.NewValidation("table", "missing column "+col)
		}
	}

	var entries []Entry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewParse("table", "row", err.Error())
		}
		line, _ := cr.FieldPos(0)
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if field("author") == "" && field("end") == "" {
			continue
		}
		e, err := parseEntry(field("author"), field("work"), field("abbreviation"), field("start"), field("end"), field("title"))
		if err != nil {
			return nil, errors.Wrapf(err, "table line %d", line)
		}
		entries = append(entries, e)
	}
	return New(entries)
}

func parseEntry(author, work, abbreviation, start, end, title string) (Entry, error) {
	a, err := strconv.Atoi(author)
	if err != nil {
		return Entry{}, errors.NewValidation("author", "not a number: "+author)
	}
	w, err := strconv.Atoi(work)
	if err != nil {
		return Entry{}, errors.NewValidation("work", "not a number: "+work)
	}
	s, err := stephanus.ParseCanonical(start)
	if err != nil {
		return Entry{}, errors.Wrap(err, "start")
	}
	e, err := stephanus.ParseCanonical(end)
	if err != nil {
		return Entry{}, errors.Wrap(err, "end")
	}
	return Entry{Author: a, Work: w, Abbreviation: abbreviation, Start: s, End: e, Title: title}, nil
}

// Load reads a table file. The format follows the extension: .tsv, .csv,
// or .db/.sqlite/.sqlite3 for a SQLite file with a works table. An empty
// path returns the embedded table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".db", ".sqlite", ".sqlite3":
		return ReadSQLite(path)
	case ".tsv", ".csv", ".txt":
	default:
		return nil, errors.NewUnsupported("table format", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("table", path)
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	if ext == ".csv" {
		return ReadCSV(f)
	}
	return ReadTSV(f)
}

// WriteTSV writes the table in the embedded format.
func (t *Table) WriteTSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"author", "work", "abbreviation", "start", "end", "title"}); err != nil {
		return err
	}
	for _, e := range t.entries {
		rec := []string{
			padded(e.Author, 4),
			padded(e.Work, 3),
			e.Abbreviation,
			e.Start.Canonical(),
			e.End.Canonical(),
			e.Title,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func padded(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
