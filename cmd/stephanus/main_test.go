package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sterrors "github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/sqlite"
	"github.com/FocuswithJustin/stephanus/core/worktable"
	"github.com/FocuswithJustin/stephanus/internal/corpus"
	"github.com/FocuswithJustin/stephanus/internal/ledger"
)

const entry = `<TEI.2><text><body><div0><div1><div2><head>ἀγαθός</head> good, <author>Plu.</author> 2.510f, 625b; Id. 693a</div2></div1></div0></body></text></TEI.2>`

// Test helper functions

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func createCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"greatscott01.xml": entry,
		"greatscott02.xml": entry,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("failed to create corpus file: %v", err)
		}
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// Tests for the corpus passes

func TestIdemThenAnnotate(t *testing.T) {
	buf := captureStdout(t)
	in := createCorpus(t)
	marked := filepath.Join(t.TempDir(), "marked")
	out := filepath.Join(t.TempDir(), "out")

	if err := (&IdemCmd{RunFlags{Input: in, Out: marked}}).Run(); err != nil {
		t.Fatalf("IdemCmd.Run() error = %v", err)
	}
	if got := readFile(t, filepath.Join(marked, "greatscott02.xml")); !strings.Contains(got, "<author>Id.</author> 693a") {
		t.Errorf("idem output = %s", got)
	}

	metricsFile := filepath.Join(t.TempDir(), "stephanus.prom")
	cmd := &AnnotateCmd{RunFlags{Input: marked, Out: out, MetricsFile: metricsFile}}
	if err := cmd.Run(); err != nil {
		t.Fatalf("AnnotateCmd.Run() error = %v", err)
	}
	got := readFile(t, filepath.Join(out, "greatscott02.xml"))
	if !strings.Contains(got, `<author>Id.</author> <bibl n="Perseus:abo:tlg,0007,112:693a">693a</bibl>`) {
		t.Errorf("annotate output = %s", got)
	}
	if _, err := os.Stat(filepath.Join(out, "greatscott01.xml")); !os.IsNotExist(err) {
		t.Errorf("excluded document written: %v", err)
	}
	if !strings.Contains(buf.String(), "annotate: 1 documents (1 written") {
		t.Errorf("summary = %q", buf.String())
	}
	if !strings.Contains(readFile(t, metricsFile), "stephanus_citations_total") {
		t.Error("metrics file missing citation counter")
	}
}

func TestAnnotateFlagsOverrideProfile(t *testing.T) {
	captureStdout(t)
	in := createCorpus(t)
	out := filepath.Join(t.TempDir(), "out")

	cmd := &AnnotateCmd{RunFlags{Input: in, Out: out, Include: []string{"*.xml"}, Exclude: []string{"none"}, Workers: 1}}
	if err := cmd.Run(); err != nil {
		t.Fatalf("AnnotateCmd.Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "greatscott01.xml")); err != nil {
		t.Errorf("--include did not select greatscott01.xml: %v", err)
	}
}

func TestAnnotateWithConfigFile(t *testing.T) {
	captureStdout(t)
	in := createCorpus(t)
	out := filepath.Join(t.TempDir(), "out")
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(profile, []byte("corpus:\n  include: [\"greatscott01.xml\"]\n  exclude: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	CLI.Config = profile
	t.Cleanup(func() { CLI.Config = "" })

	if err := (&AnnotateCmd{RunFlags{Input: in, Out: out}}).Run(); err != nil {
		t.Fatalf("AnnotateCmd.Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "greatscott01.xml")); err != nil {
		t.Errorf("profile include ignored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "greatscott02.xml")); !os.IsNotExist(err) {
		t.Errorf("greatscott02.xml written despite profile: %v", err)
	}
}

func TestAnnotateInvalidFlags(t *testing.T) {
	captureStdout(t)
	in := createCorpus(t)
	tests := []struct {
		name  string
		flags RunFlags
	}{
		{"no output", RunFlags{Input: in}},
		{"in place without backup", RunFlags{Input: in, InPlace: true}},
		{"output inside input", RunFlags{Input: in, Out: filepath.Join(in, "out")}},
		{"bad glob", RunFlags{Input: in, Out: t.TempDir(), Include: []string{"[a"}}},
		{"bad ceiling", RunFlags{Input: in, Out: t.TempDir(), Ceiling: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&AnnotateCmd{tt.flags}).Run()
			if !errors.Is(err, sterrors.ErrInvalidInput) {
				t.Errorf("AnnotateCmd.Run() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestStrictFailureExitsWithError(t *testing.T) {
	captureStdout(t)
	in := t.TempDir()
	doc := `<TEI.2><div1><div2><author>Plu.</author> 1.2.510f</div2></div1></TEI.2>`
	if err := os.WriteFile(filepath.Join(in, "greatscott02.xml"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	err := (&AnnotateCmd{RunFlags{Input: in, Out: filepath.Join(t.TempDir(), "out"), Strict: true}}).Run()
	if !errors.Is(err, corpus.ErrDocumentsFailed) {
		t.Errorf("AnnotateCmd.Run() error = %v, want ErrDocumentsFailed", err)
	}
}

func TestAmendInPlaceWithLedger(t *testing.T) {
	buf := captureStdout(t)
	in := t.TempDir()
	doc := `<TEI.2><div1><div2><author>Plu.</author> <bibl n="Perseus:abo:tlg,0007,069:38c">2.510f</bibl></div2></div1></TEI.2>`
	path := filepath.Join(in, "greatscott02.xml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(t.TempDir(), "run.db")

	cmd := &AmendCmd{RunFlags{Input: in, InPlace: true, Backup: t.TempDir(), Ledger: db}}
	if err := cmd.Run(); err != nil {
		t.Fatalf("AmendCmd.Run() error = %v", err)
	}
	want := `<bibl n="Perseus:abo:tlg,0007,102:510f"><title>[Garr.]</title> 2.510f</bibl>`
	if got := readFile(t, path); !strings.Contains(got, want) {
		t.Errorf("amended document = %s, want %s", got, want)
	}
	if !strings.Contains(buf.String(), "fixed_n_work: 1") {
		t.Errorf("summary = %q", buf.String())
	}

	l, err := ledger.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	runs, err := l.Runs(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Pass != "amend" || runs[0].Amended != 1 {
		t.Errorf("ledger runs = %+v", runs)
	}
}

func TestCheckWritesNothing(t *testing.T) {
	buf := captureStdout(t)
	in := createCorpus(t)
	before := readFile(t, filepath.Join(in, "greatscott02.xml"))
	report := filepath.Join(t.TempDir(), "diag.jsonl")

	if err := (&CheckCmd{Input: in, Report: report}).Run(); err != nil {
		t.Fatalf("CheckCmd.Run() error = %v", err)
	}
	if readFile(t, filepath.Join(in, "greatscott02.xml")) != before {
		t.Error("check modified its input")
	}
	if !strings.Contains(buf.String(), "check: 1 documents") {
		t.Errorf("summary = %q", buf.String())
	}
	records, err := corpus.ReadReport(report)
	if err != nil {
		t.Fatalf("ReadReport() error: %v", err)
	}
	if len(records) == 0 {
		t.Error("check wrote an empty report")
	}
}

// Tests for the table commands

func TestTableList(t *testing.T) {
	buf := captureStdout(t)
	if err := (&TableListCmd{}).Run(); err != nil {
		t.Fatalf("TableListCmd.Run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "author\twork\tabbreviation\tstart\tend\ttitle" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines)-1 != worktable.MustDefault().Len() {
		t.Errorf("listed %d works, want %d", len(lines)-1, worktable.MustDefault().Len())
	}
}

func TestTableCheck(t *testing.T) {
	buf := captureStdout(t)
	if err := (&TableCheckCmd{}).Run(); err != nil {
		t.Fatalf("TableCheckCmd.Run() error = %v\n%s", err, buf)
	}

	bad := filepath.Join(t.TempDir(), "bad.tsv")
	tsv := "author\twork\tabbreviation\tstart\tend\n0007\t001\tA.\t1a\t5c\n0007\t002\tB.\t4a\t9f\n"
	if err := os.WriteFile(bad, []byte(tsv), 0644); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := (&TableCheckCmd{Table: bad}).Run(); err == nil {
		t.Error("TableCheckCmd.Run() error = nil, want overlap")
	}
	if !strings.Contains(buf.String(), "overlap") {
		t.Errorf("output = %q, want an overlap issue", buf.String())
	}
}

func TestTableExport(t *testing.T) {
	buf := captureStdout(t)
	db := filepath.Join(t.TempDir(), "works.db")
	if err := (&TableExportCmd{DB: db}).Run(); err != nil {
		t.Fatalf("TableExportCmd.Run() error = %v", err)
	}
	got, err := worktable.Load(db)
	if err != nil {
		t.Fatalf("Load(%s) error: %v", db, err)
	}
	if got.Len() != worktable.MustDefault().Len() {
		t.Errorf("exported %d works, want %d", got.Len(), worktable.MustDefault().Len())
	}
	if !strings.Contains(buf.String(), sqlite.GetInfo().DriverType) {
		t.Errorf("output = %q, want the driver type", buf.String())
	}
}

func TestTableMissingFile(t *testing.T) {
	err := (&TableListCmd{Table: filepath.Join(t.TempDir(), "missing.tsv")}).Run()
	if !errors.Is(err, sterrors.ErrNotFound) {
		t.Errorf("TableListCmd.Run() error = %v, want ErrNotFound", err)
	}
}

func TestVersionCmd(t *testing.T) {
	buf := captureStdout(t)
	if err := (&VersionCmd{}).Run(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("VersionCmd.Run() printed %q, want two lines", buf.String())
	}
	if got, want := lines[0], "stephanus version "+version; got != want {
		t.Errorf("version line = %q, want %q", got, want)
	}
	if !strings.Contains(lines[1], sqlite.GetInfo().Package) {
		t.Errorf("driver line = %q, want %q", lines[1], sqlite.GetInfo().Package)
	}
}

func TestInitLogging(t *testing.T) {
	defer func(level, format string) { CLI.LogLevel, CLI.LogFormat = level, format }(CLI.LogLevel, CLI.LogFormat)

	CLI.LogLevel, CLI.LogFormat = "debug", "json"
	if err := initLogging(); err != nil {
		t.Errorf("initLogging() error = %v", err)
	}
	CLI.LogLevel = "loud"
	if err := initLogging(); !errors.Is(err, sterrors.ErrInvalidInput) {
		t.Errorf("initLogging() error = %v, want ErrInvalidInput", err)
	}
	CLI.LogLevel, CLI.LogFormat = "info", "text"
	initLogging()
}

func TestRestoreAfterInPlaceAnnotate(t *testing.T) {
	buf := captureStdout(t)
	in := createCorpus(t)
	backup := t.TempDir()
	path := filepath.Join(in, "greatscott02.xml")

	if err := (&AnnotateCmd{RunFlags{Input: in, InPlace: true, Backup: backup}}).Run(); err != nil {
		t.Fatalf("AnnotateCmd.Run() error = %v", err)
	}
	if readFile(t, path) == entry {
		t.Fatal("annotate did not rewrite the document")
	}

	buf.Reset()
	if err := (&RestoreCmd{Input: in, Backup: backup}).Run(); err != nil {
		t.Fatalf("RestoreCmd.Run() error = %v", err)
	}
	if got := readFile(t, path); got != entry {
		t.Errorf("restored document = %s, want the original", got)
	}
	if !strings.Contains(buf.String(), "restored 1 documents") {
		t.Errorf("output = %q", buf.String())
	}

	err := (&RestoreCmd{Input: in, Backup: backup, RunID: "unknown"}).Run()
	if !errors.Is(err, sterrors.ErrNotFound) {
		t.Errorf("RestoreCmd.Run(unknown run) error = %v, want ErrNotFound", err)
	}
}
