// Command stephanus lifts Stephanus citations of Plutarch's Moralia in LSJ
// XML into identifier-bearing citation elements.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/stephanus/core/amend"
	"github.com/FocuswithJustin/stephanus/core/annotate"
	"github.com/FocuswithJustin/stephanus/core/backref"
	"github.com/FocuswithJustin/stephanus/core/sqlite"
	"github.com/FocuswithJustin/stephanus/core/worktable"
	"github.com/FocuswithJustin/stephanus/internal/config"
	"github.com/FocuswithJustin/stephanus/internal/corpus"
	"github.com/FocuswithJustin/stephanus/internal/ledger"
	"github.com/FocuswithJustin/stephanus/internal/logging"
	"github.com/FocuswithJustin/stephanus/internal/metrics"
)

const version = "0.4.0"

// stdout receives reports and summaries; logs go to stderr.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for stephanus.
var CLI struct {
	// Global flags
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text"`
	Config    string `help:"YAML profile" type:"path"`

	Annotate AnnotateCmd `cmd:"" help:"Wrap Moralia citations in citation elements"`
	Idem     IdemCmd     `cmd:"" help:"Wrap back-reference markers in author elements"`
	Amend    AmendCmd    `cmd:"" help:"Repair identifiers and titles of existing citation elements"`
	Check    CheckCmd    `cmd:"" help:"Report what annotate and amend would change"`
	Restore  RestoreCmd  `cmd:"" help:"Write back originals saved by an in-place run"`
	Table    TableGroup  `cmd:"" help:"Work table operations"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// RunFlags are shared by the corpus passes.
type RunFlags struct {
	Input       string   `arg:"" help:"Corpus directory, .tar.xz/.tar.gz archive or XML file" type:"path"`
	Out         string   `help:"Output directory or archive" type:"path"`
	InPlace     bool     `name:"in-place" help:"Rewrite the input files"`
	Backup      string   `help:"Backup store for --in-place" type:"path"`
	Table       string   `help:"Work table (.tsv, .csv or SQLite)" type:"path"`
	Include     []string `help:"Include glob, repeatable"`
	Exclude     []string `help:"Exclude glob, repeatable"`
	Workers     int      `help:"Documents processed in parallel (0: one per CPU)"`
	Scope       string   `help:"XPath of the elements searched for back-references"`
	Ceiling     string   `help:"Largest citable token"`
	Strict      bool     `help:"Fail documents with aborted nodes"`
	Report      string   `help:"Write diagnostics as JSONL" type:"path"`
	Ledger      string   `help:"Record the run in a SQLite ledger" type:"path"`
	MetricsFile string   `name:"metrics-file" help:"Write Prometheus metrics in textfile format" type:"path"`
}

// AnnotateCmd wraps citations.
type AnnotateCmd struct {
	RunFlags `embed:""`
}

func (c *AnnotateCmd) Run() error {
	return runPass(corpus.PassAnnotate, c.RunFlags)
}

// IdemCmd wraps back-reference markers.
type IdemCmd struct {
	RunFlags `embed:""`
}

func (c *IdemCmd) Run() error {
	return runPass(corpus.PassIdem, c.RunFlags)
}

// AmendCmd repairs citation elements.
type AmendCmd struct {
	RunFlags `embed:""`
}

func (c *AmendCmd) Run() error {
	return runPass(corpus.PassAmend, c.RunFlags)
}

// CheckCmd is a dry run of annotate and amend.
type CheckCmd struct {
	Input   string   `arg:"" help:"Corpus directory, archive or XML file" type:"path"`
	Table   string   `help:"Work table (.tsv, .csv or SQLite)" type:"path"`
	Include []string `help:"Include glob, repeatable"`
	Exclude []string `help:"Exclude glob, repeatable"`
	Workers int      `help:"Documents processed in parallel (0: one per CPU)"`
	Strict  bool     `help:"Fail documents with aborted nodes"`
	Report  string   `help:"Write diagnostics as JSONL" type:"path"`
	Ledger  string   `help:"Record the run in a SQLite ledger" type:"path"`
}

func (c *CheckCmd) Run() error {
	return runPass(corpus.PassCheck, RunFlags{
		Input:   c.Input,
		Table:   c.Table,
		Include: c.Include,
		Exclude: c.Exclude,
		Workers: c.Workers,
		Strict:  c.Strict,
		Report:  c.Report,
		Ledger:  c.Ledger,
	})
}

// RestoreCmd restores in-place originals from the backup store.
type RestoreCmd struct {
	Input  string `arg:"" help:"Corpus directory or XML file rewritten in place" type:"path"`
	Backup string `required:"" help:"Backup store given to --in-place" type:"path"`
	RunID  string `name:"run" help:"Restore the originals saved by this run id; latest by default"`
}

func (c *RestoreCmd) Run() error {
	records, err := corpus.Restore(context.Background(), c.Input, c.Backup, c.RunID)
	for _, rec := range records {
		fmt.Fprintf(stdout, "%-28s %s %s\n", rec.Name, rec.Digest[:12], rec.Run)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "restored %d documents\n", len(records))
	return nil
}

// TableGroup contains work table operations.
type TableGroup struct {
	List   TableListCmd   `cmd:"" help:"Print the work table"`
	Check  TableCheckCmd  `cmd:"" help:"Check that the ranges partition the citation space"`
	Export TableExportCmd `cmd:"" help:"Write the work table into a SQLite database"`
}

// TableListCmd prints the table as TSV.
type TableListCmd struct {
	Table string `help:"Work table; the embedded Moralia table by default" type:"path"`
}

func (c *TableListCmd) Run() error {
	t, err := loadTable(c.Table)
	if err != nil {
		return err
	}
	return t.WriteTSV(stdout)
}

// TableCheckCmd reports table issues.
type TableCheckCmd struct {
	Table string `help:"Work table; the embedded Moralia table by default" type:"path"`
}

func (c *TableCheckCmd) Run() error {
	t, err := loadTable(c.Table)
	if err != nil {
		return err
	}
	issues := t.Check()
	for _, issue := range issues {
		fmt.Fprintln(stdout, issue)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d issues in %d works", len(issues), t.Len())
	}
	fmt.Fprintf(stdout, "%d works, no issues\n", t.Len())
	return nil
}

// TableExportCmd writes the table to SQLite.
type TableExportCmd struct {
	Table string `help:"Work table; the embedded Moralia table by default" type:"path"`
	DB    string `name:"db" required:"" help:"SQLite database path" type:"path"`
}

func (c *TableExportCmd) Run() error {
	t, err := loadTable(c.Table)
	if err != nil {
		return err
	}
	if err := t.WriteSQLite(c.DB); err != nil {
		return err
	}
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "exported %d works to %s (%s, %s)\n", t.Len(), c.DB, info.Package, info.DriverType)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "stephanus version %s\n", version)
	fmt.Fprintf(stdout, "sqlite driver: %s (%s, cgo=%v)\n", info.Package, info.DriverName, info.IsCGO)
	return nil
}

// Helper functions

// loadTable prefers the flag, then the profile's table, then the
// embedded table.
func loadTable(path string) (*worktable.Table, error) {
	if path != "" {
		return worktable.Load(path)
	}
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	return worktable.Load(cfg.Table)
}

// loadConfig reads the profile and applies the flags over it.
func loadConfig(f RunFlags) (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	cfg.Merge(&config.Config{
		Table:   f.Table,
		Profile: config.ProfileConfig{Ceiling: f.Ceiling},
		Corpus: config.CorpusConfig{
			Include: f.Include,
			Exclude: f.Exclude,
			Workers: f.Workers,
			Scope:   f.Scope,
		},
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Debug("profile loaded", "config", CLI.Config, "table", cfg.Table,
		"include", cfg.Corpus.Include, "exclude", cfg.Corpus.Exclude, "ceiling", cfg.Profile.Ceiling)
	return cfg, nil
}

func runPass(pass corpus.Pass, f RunFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	table, err := worktable.Load(cfg.Table)
	if err != nil {
		return err
	}
	profile := cfg.AnnotateProfile()

	an, err := annotate.New(profile, table)
	if err != nil {
		return err
	}
	wrapper, err := backref.New(profile.BackReference, profile.AuthorTag, cfg.Corpus.Scope)
	if err != nil {
		return err
	}
	amender, err := amend.New(profile, table)
	if err != nil {
		return err
	}

	var options []corpus.Option
	if f.Ledger != "" {
		l, err := ledger.Open(f.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()
		logging.Info("recording run", "ledger", f.Ledger, "driver", sqlite.GetInfo().Package)
		options = append(options, corpus.WithRecorder(l))
	}
	var m *metrics.Metrics
	if f.MetricsFile != "" {
		m = metrics.New()
		options = append(options, corpus.WithMetrics(m))
	}

	d, err := corpus.New(corpus.Options{
		Pass:    pass,
		Input:   f.Input,
		Output:  f.Out,
		InPlace: f.InPlace,
		Backup:  f.Backup,
		Select:  corpus.Selector{Include: cfg.Corpus.Include, Exclude: cfg.Corpus.Exclude},
		Workers: cfg.Corpus.Workers,
		Strict:  f.Strict,
		Report:  f.Report,
	}, an, wrapper, amender, options...)
	if err != nil {
		return err
	}

	s, err := d.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(stdout, s)
	if s.Aborted > 0 && !f.Strict {
		logging.Warn("nodes left untouched after an ambiguous split; --strict fails their documents", "aborted", s.Aborted)
	}

	if m != nil {
		if err := m.WriteFile(f.MetricsFile); err != nil {
			return err
		}
	}
	return s.Err()
}

// printSummary writes one line per document and the run totals.
func printSummary(w io.Writer, s *corpus.Summary) {
	for _, r := range s.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "%-28s %-9s %v\n", r.Name, r.Status, r.Err)
			continue
		}
		fmt.Fprintf(w, "%-28s %-9s wrapped=%d rejected=%d aborted=%d marked=%d amended=%d\n",
			r.Name, r.Status, r.Wrapped, r.Rejected, r.Aborted, r.Marked, r.Amended)
	}
	fmt.Fprintf(w, "%s: %d documents (%d written, %d unchanged, %d failed) in %s\n",
		s.Pass, s.Documents, s.Written, s.Unchanged, s.Failed, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "citations: %d wrapped, %d rejected, %d aborted nodes, %d markers, %d amended\n",
		s.Wrapped, s.Rejected, s.Aborted, s.Marked, s.Amended)
	for _, kind := range []amend.Amendment{amend.FixedToken, amend.FixedWork, amend.FixedTitle, amend.AddedTitleAuthor, amend.AddedTitle} {
		if n := s.Amendments[kind]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", kind, n)
		}
	}
	for _, p := range []amend.Problem{amend.NoToken, amend.OutOfRange, amend.UnknownWork, amend.UnexpectedAuthor} {
		if n := s.Problems[p]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", p, n)
		}
	}
}

func initLogging() error {
	level, err := logging.ParseLevel(CLI.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(CLI.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("stephanus"),
		kong.Description("Stephanus citation annotation for LSJ XML"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(initLogging())
	err := ctx.Run(ctx)
	if err != nil {
		logging.Error("command failed", "command", ctx.Command(), "error", err)
	}
	ctx.FatalIfErrorf(err)
}
