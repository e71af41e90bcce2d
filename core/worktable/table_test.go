package worktable

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	sterrors "github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
)

func tok(s string) stephanus.Token {
	return stephanus.MustParse(s)
}

func TestDefaultTable(t *testing.T) {
	table, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if got := table.Max().Canonical(); got != "1147a" {
		t.Errorf("Max() = %q, want %q", got, "1147a")
	}
	if issues := table.Check(); len(issues) != 0 {
		t.Errorf("embedded table has issues: %v", issues)
	}
	if diff := cmp.Diff([]int{7, 94}, table.Authors()); diff != "" {
		t.Errorf("Authors() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	table := MustDefault()
	tests := []struct {
		raw      string
		wantKey  string
		wantAbbr string
	}{
		{"1a", "0094,001", "Lib.ed."},
		{"14c", "0094,001", "Lib.ed."},
		{"14d", "0007,068", "Aud.poet."},
		{"2.37b", "0007,068", "Aud.poet."},
		{"1.38c", "0007,069", "Aud."},
		{"2.510f", "0007,102", "Garr."},
		{"625b", "0007,112", "Quaest.conv."},
		{"2.961e", "0007,127", "Soll.an."},
		{"1147a", "0094,007", "Mus."},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			e, err := table.ClassifyRaw(tt.raw)
			if err != nil {
				t.Fatalf("Classify(%q) error: %v", tt.raw, err)
			}
			if e.Key() != tt.wantKey || e.Abbreviation != tt.wantAbbr {
				t.Errorf("Classify(%q) = %s %s, want %s %s", tt.raw, e.Key(), e.Abbreviation, tt.wantKey, tt.wantAbbr)
			}
			if !e.Contains(tok(tt.raw)) {
				t.Errorf("entry %s does not contain %s", e, tt.raw)
			}
		})
	}
}

func TestClassifyOutOfRange(t *testing.T) {
	table := MustDefault()

	if _, err := table.Classify(tok("1147a")); err != nil {
		t.Errorf("Classify(1147a) error: %v", err)
	}

	_, err := table.Classify(tok("1148a"))
	if !errors.Is(err, sterrors.ErrOutOfRange) {
		t.Fatalf("Classify(1148a) error = %v, want ErrOutOfRange", err)
	}
	var tokErr *sterrors.TokenError
	if !errors.As(err, &tokErr) || tokErr.Token != "1148a" {
		t.Errorf("Classify(1148a) error = %#v, want TokenError for 1148a", err)
	}

	if _, err := table.ClassifyRaw("2.510g"); !errors.Is(err, sterrors.ErrMalformedToken) {
		t.Errorf("ClassifyRaw(2.510g) error = %v, want ErrMalformedToken", err)
	}
}

func TestNewSortsByEnd(t *testing.T) {
	table, err := New([]Entry{
		{Author: 7, Work: 2, Abbreviation: "B", Start: tok("11a"), End: tok("20f")},
		{Author: 7, Work: 1, Abbreviation: "A", Start: tok("1a"), End: tok("10f")},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	e, err := table.Classify(tok("5c"))
	if err != nil || e.Abbreviation != "A" {
		t.Errorf("Classify(5c) = %v, %v, want A", e, err)
	}

	if _, err := New(nil); !errors.Is(err, sterrors.ErrInvalidInput) {
		t.Errorf("New(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestLookup(t *testing.T) {
	table := MustDefault()
	e, err := table.Lookup(7, 69)
	if err != nil {
		t.Fatalf("Lookup(7, 69) error: %v", err)
	}
	if e.Abbreviation != "Aud." || e.Start.Canonical() != "37c" || e.End.Canonical() != "48d" {
		t.Errorf("Lookup(7, 69) = %s", e)
	}

	if _, err := table.Lookup(94, 69); !errors.Is(err, sterrors.ErrNotFound) {
		t.Errorf("Lookup(94, 69) error = %v, want ErrNotFound", err)
	}
	if !table.HasAuthor(94) || table.HasAuthor(1) {
		t.Error("HasAuthor() mismatch")
	}
}

func TestCheck(t *testing.T) {
	table, err := New([]Entry{
		{Author: 7, Work: 1, Abbreviation: "A", Start: tok("1a"), End: tok("10c")},
		{Author: 7, Work: 2, Abbreviation: "B", Start: tok("10b"), End: tok("20f")},
		{Author: 7, Work: 3, Abbreviation: "C", Start: tok("25a"), End: tok("30f")},
		{Author: 7, Work: 3, Abbreviation: "D", Start: tok("45a"), End: tok("40f")},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var kinds []IssueKind
	for _, issue := range table.Check() {
		kinds = append(kinds, issue.Kind)
	}
	want := []IssueKind{IssueOverlap, IssueGap, IssueInverted, IssueDuplicate, IssueGap}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("Check() kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAllowsPageBreak(t *testing.T) {
	table, err := New([]Entry{
		{Author: 7, Work: 1, Abbreviation: "A", Start: tok("1a"), End: tok("14c")},
		{Author: 7, Work: 2, Abbreviation: "B", Start: tok("15a"), End: tok("20f")},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if issues := table.Check(); len(issues) != 0 {
		t.Errorf("Check() = %v, want no issues", issues)
	}
}

func TestReadCSVAliases(t *testing.T) {
	input := "author_id,sub_work_id,abbr,start_ref,end_boundary\n" +
		"# comment line\n" +
		"0007,069,Aud.,37c,48d\n" +
		"0007,070,Adul.amic.,48e,74e\n"

	table, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if got := table.Max().Canonical(); got != "74e" {
		t.Errorf("Max() = %q, want %q", got, "74e")
	}
}

func TestReadTSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", sterrors.ErrInvalidInput},
		{"missing column", "author\twork\tstart\tend\n", sterrors.ErrInvalidInput},
		{"bad boundary", "author\twork\tabbreviation\tstart\tend\n7\t1\tA\t1a\t2.10f\n", sterrors.ErrMalformedToken},
		{"bad author", "author\twork\tabbreviation\tstart\tend\nx\t1\tA\t1a\t10f\n", sterrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTSV(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadTSV() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteTSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := MustDefault().WriteTSV(&buf); err != nil {
		t.Fatalf("WriteTSV() error: %v", err)
	}
	if buf.String() != moraliaTSV {
		t.Error("WriteTSV() output differs from the embedded table")
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path is embedded table", func(t *testing.T) {
		table, err := Load("")
		if err != nil || table.Len() != MustDefault().Len() {
			t.Errorf("Load(\"\") = %v, %v", table, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.tsv"))
		if !errors.Is(err, sterrors.ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load("works.xlsx")
		if !errors.Is(err, sterrors.ErrUnsupported) {
			t.Errorf("Load() error = %v, want ErrUnsupported", err)
		}
	})
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "works.db")
	want := MustDefault()

	if err := want.WriteSQLite(path); err != nil {
		t.Fatalf("WriteSQLite() error: %v", err)
	}
	// Writing twice replaces the rows.
	if err := want.WriteSQLite(path); err != nil {
		t.Fatalf("second WriteSQLite() error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) error: %v", path, err)
	}
	if diff := cmp.Diff(want.Entries(), got.Entries()); diff != "" {
		t.Errorf("SQLite round trip mismatch (-want +got):\n%s", diff)
	}
}
