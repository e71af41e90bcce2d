// Package corpus runs a pass over every document of a corpus: it finds
// the documents, processes them in parallel, verifies that the visible
// text survived, writes the results and reports what happened.
package corpus

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/stephanus/core/amend"
	"github.com/FocuswithJustin/stephanus/core/annotate"
	"github.com/FocuswithJustin/stephanus/core/backref"
	"github.com/FocuswithJustin/stephanus/core/cas"
	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/markup"
	"github.com/FocuswithJustin/stephanus/internal/archive"
	"github.com/FocuswithJustin/stephanus/internal/logging"
	"github.com/FocuswithJustin/stephanus/internal/metrics"
	"github.com/FocuswithJustin/stephanus/internal/validation"
)

// Pass names what a run does to each document.
type Pass string

const (
	PassAnnotate Pass = "annotate"
	PassIdem     Pass = "idem"
	PassAmend    Pass = "amend"
	PassCheck    Pass = "check"
)

// preservesText reports whether the pass must leave Itertext unchanged.
func (p Pass) preservesText() bool {
	return p == PassAnnotate || p == PassIdem
}

// Status is the outcome of one document.
type Status string

const (
	StatusWritten   Status = "written"
	StatusUnchanged Status = "unchanged"
	StatusChecked   Status = "checked"
	StatusFailed    Status = "failed"
)

// ErrDocumentsFailed is returned by Summary.Err when a document failed.
var ErrDocumentsFailed = stderrors.New("documents failed")

// Options configures a run.
type Options struct {
	Pass   Pass
	Input  string
	Output string // directory, or a .tar.xz/.tar.gz archive
	// InPlace overwrites the inputs; Backup is then required.
	InPlace bool
	Backup  string
	Select  Selector
	Workers int
	// Strict fails a document with aborted nodes.
	Strict bool
	// Report is a JSONL diagnostics file.
	Report string
}

// Validate checks option combinations before anything is read.
func (o Options) Validate() error {
	switch o.Pass {
	case PassAnnotate, PassIdem, PassAmend, PassCheck:
	default:
		return errors.NewValidation("pass", "unknown pass "+string(o.Pass))
	}
	if o.Input == "" {
		return errors.NewValidation("input", "no input given")
	}
	if o.Pass == PassCheck {
		return nil
	}
	switch {
	case o.InPlace && o.Output != "":
		return errors.NewValidation("out", "--out and --in-place are exclusive")
	case o.InPlace && o.Backup == "":
		return errors.NewValidation("backup", "--in-place requires --backup")
	case !o.InPlace && o.Output == "":
		return errors.NewValidation("out", "one of --out or --in-place is required")
	case o.InPlace && archive.IsArchive(o.Input):
		return errors.NewValidation("in-place", "an archive cannot be rewritten in place")
	}
	if o.Output != "" && !archive.IsArchive(o.Output) {
		if err := validation.CheckOutput(o.Input, o.Output); err != nil {
			return errors.NewValidation("out", err.Error())
		}
	}
	return nil
}

// DocumentResult is the outcome of one document.
type DocumentResult struct {
	Name        string
	Status      Status
	Before      string // BLAKE3 of the input bytes
	After       string // BLAKE3 of the output bytes
	Wrapped     int
	Rejected    int
	Aborted     int
	Marked      int
	Amended     int
	Amendments  map[amend.Amendment]int
	Problems    map[amend.Problem]int
	Diagnostics []annotate.Diagnostic
	Err         error
	Duration    time.Duration

	output []byte
}

// Summary aggregates a run.
type Summary struct {
	RunID      string
	Pass       Pass
	Input      string
	Started    time.Time
	Duration   time.Duration
	Documents  int
	Written    int
	Unchanged  int
	Failed     int
	Wrapped    int
	Rejected   int
	Aborted    int
	Marked     int
	Amended    int
	Amendments map[amend.Amendment]int
	Problems   map[amend.Problem]int
	Results    []DocumentResult
}

// Err reports ErrDocumentsFailed when any document failed.
func (s *Summary) Err() error {
	if s.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDocumentsFailed, s.Failed, s.Documents)
	}
	return nil
}

func (s *Summary) add(r DocumentResult) {
	s.Documents++
	switch r.Status {
	case StatusWritten:
		s.Written++
	case StatusUnchanged, StatusChecked:
		s.Unchanged++
	case StatusFailed:
		s.Failed++
	}
	s.Wrapped += r.Wrapped
	s.Rejected += r.Rejected
	s.Aborted += r.Aborted
	s.Marked += r.Marked
	s.Amended += r.Amended
	for k, n := range r.Amendments {
		s.Amendments[k] += n
	}
	for k, n := range r.Problems {
		s.Problems[k] += n
	}
}

// RunInfo identifies a run to a Recorder.
type RunInfo struct {
	ID      string
	Pass    Pass
	Input   string
	Started time.Time
}

// Recorder persists runs, such as the SQLite ledger.
type Recorder interface {
	BeginRun(ctx context.Context, info RunInfo) error
	RecordDocument(ctx context.Context, runID string, r *DocumentResult) error
	FinishRun(ctx context.Context, s *Summary) error
}

// Driver runs one pass over a corpus.
type Driver struct {
	opts      Options
	annotator *annotate.Annotator
	wrapper   *backref.Wrapper
	amender   *amend.Amender
	recorder  Recorder
	metrics   *metrics.Metrics
}

// Option attaches optional collaborators to a Driver.
type Option func(*Driver)

// WithRecorder records the run, for example in the ledger.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithMetrics counts the run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// New returns a Driver. The collaborators needed by the pass must be
// non-nil: the annotator for annotate and check, the wrapper for idem,
// the amender for amend and check.
func New(opts Options, an *annotate.Annotator, w *backref.Wrapper, am *amend.Amender, options ...Option) (*Driver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	missing := (opts.Pass == PassAnnotate || opts.Pass == PassCheck) && an == nil ||
		opts.Pass == PassIdem && w == nil ||
		(opts.Pass == PassAmend || opts.Pass == PassCheck) && am == nil
	if missing {
		return nil, errors.NewValidation("pass", "missing processor for "+string(opts.Pass))
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	d := &Driver{opts: opts, annotator: an, wrapper: w, amender: am}
	for _, o := range options {
		o(d)
	}
	return d, nil
}

// Run processes every selected document. The returned error is set only
// when the run itself failed (no input, cancellation, unwritable
// report); failed documents are reported through Summary.Err.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	s := &Summary{
		RunID:      uuid.NewString(),
		Pass:       d.opts.Pass,
		Input:      d.opts.Input,
		Started:    time.Now().UTC(),
		Amendments: make(map[amend.Amendment]int),
		Problems:   make(map[amend.Problem]int),
	}
	ctx = logging.WithRunID(ctx, s.RunID)

	docs, err := Discover(d.opts.Input, d.opts.Select)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		logging.WarnContext(ctx, "no documents selected", "input", d.opts.Input)
	}

	var backup *cas.Backup
	if d.opts.InPlace {
		if backup, err = cas.NewBackup(d.opts.Backup, s.RunID); err != nil {
			return nil, err
		}
	}
	toDir := d.opts.Output != "" && !archive.IsArchive(d.opts.Output)

	if d.recorder != nil {
		info := RunInfo{ID: s.RunID, Pass: s.Pass, Input: s.Input, Started: s.Started}
		if err := d.recorder.BeginRun(ctx, info); err != nil {
			return nil, err
		}
	}

	results := make([]DocumentResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := d.process(doc)
			if r.Err == nil && d.opts.Pass != PassCheck {
				switch {
				case backup != nil && r.Status == StatusWritten:
					r.Err = d.replace(doc, r.output, backup)
				case toDir:
					r.Err = writeAtomic(filepath.Join(d.opts.Output, filepath.FromSlash(doc.Name)), r.output)
				}
				if r.Err != nil {
					r.Status = StatusFailed
				}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if d.opts.Output != "" && archive.IsArchive(d.opts.Output) && d.opts.Pass != PassCheck {
		if err := writeArchive(d.opts.Output, results); err != nil {
			return nil, err
		}
	}

	for i := range results {
		r := &results[i]
		r.output = nil
		s.add(*r)
		d.observe(ctx, r)
		if d.recorder != nil {
			if err := d.recorder.RecordDocument(ctx, s.RunID, r); err != nil {
				return nil, err
			}
		}
	}
	s.Results = results
	s.Duration = time.Since(s.Started)

	if d.opts.Report != "" {
		if err := WriteReport(d.opts.Report, results); err != nil {
			return nil, err
		}
	}
	if d.metrics != nil && s.Failed == 0 {
		d.metrics.Succeeded(time.Now())
	}
	if d.recorder != nil {
		if err := d.recorder.FinishRun(ctx, s); err != nil {
			return nil, err
		}
	}
	logging.RunSummary(ctx, string(s.Pass), s.Documents, s.Failed, s.Duration,
		"wrapped", s.Wrapped, "rejected", s.Rejected, "aborted", s.Aborted,
		"marked", s.Marked, "amended", s.Amended)
	return s, nil
}

// process runs the pass over one document in memory.
func (d *Driver) process(doc Document) DocumentResult {
	start := time.Now()
	r := DocumentResult{Name: doc.Name}

	fail := func(err error) DocumentResult {
		r.Status = StatusFailed
		r.Err = err
		r.output = nil
		r.Duration = time.Since(start)
		return r
	}

	data, err := doc.read()
	if err != nil {
		return fail(err)
	}
	r.Before = cas.Digest(data)

	tree, err := markup.Parse(data)
	if err != nil {
		return fail(errors.Wrapf(err, "%s", doc.Name))
	}
	before := tree.Itertext()

	switch d.opts.Pass {
	case PassAnnotate:
		d.annotate(tree, &r)
	case PassIdem:
		d.idem(tree, &r)
	case PassAmend:
		d.amend(tree, &r)
	case PassCheck:
		d.annotate(tree, &r)
		d.amend(tree, &r)
	}

	if d.opts.Pass.preservesText() && tree.Itertext() != before {
		return fail(errors.Wrapf(errors.ErrTextChanged, "%s", doc.Name))
	}
	if d.opts.Strict && r.Aborted > 0 {
		return fail(fmt.Errorf("%s: %d nodes aborted: %w", doc.Name, r.Aborted, errors.ErrAmbiguousSplit))
	}

	out := tree.Bytes()
	if r.Wrapped+r.Marked+r.Amended == 0 {
		// Serialization normalizes markup such as <x></x>; a document the
		// pass did not touch keeps its bytes.
		out = data
	}
	r.After = cas.Digest(out)
	r.output = out
	switch {
	case d.opts.Pass == PassCheck:
		r.Status = StatusChecked
		r.output = nil
	case bytes.Equal(out, data):
		r.Status = StatusUnchanged
	default:
		r.Status = StatusWritten
	}
	r.Duration = time.Since(start)
	return r
}

func (d *Driver) annotate(tree *markup.Document, r *DocumentResult) {
	res := d.annotator.Run(tree)
	r.Wrapped += res.Wrapped
	r.Rejected += res.Rejected
	r.Aborted += res.Aborted
	r.Diagnostics = append(r.Diagnostics, res.Diagnostics...)
}

func (d *Driver) idem(tree *markup.Document, r *DocumentResult) {
	for _, m := range d.wrapper.Run(tree) {
		r.Marked += len(m.Created)
		r.Diagnostics = append(r.Diagnostics, annotate.Diagnostic{
			Kind:   annotate.KindIdem,
			Path:   m.Path,
			Reason: fmt.Sprintf("%d wrapped", len(m.Created)),
		})
	}
}

func (d *Driver) amend(tree *markup.Document, r *DocumentResult) {
	res := d.amender.Run(tree)
	r.Amended += res.Amended
	r.Amendments = res.Counts
	r.Problems = res.Problems
	r.Diagnostics = append(r.Diagnostics, res.Diagnostics...)
}

// replace saves the original bytes and overwrites the input.
func (d *Driver) replace(doc Document, out []byte, backup *cas.Backup) error {
	data, err := doc.read()
	if err != nil {
		return err
	}
	if _, err := backup.Save(doc.Name, data); err != nil {
		return err
	}
	return writeAtomic(doc.Path, out)
}

func (d *Driver) observe(ctx context.Context, r *DocumentResult) {
	if r.Err != nil {
		logging.DocumentError(ctx, r.Name, string(d.opts.Pass), r.Err)
	} else {
		logging.Document(ctx, r.Name, string(d.opts.Pass), "status", string(r.Status),
			"wrapped", r.Wrapped, "rejected", r.Rejected, "aborted", r.Aborted,
			"marked", r.Marked, "amended", r.Amended)
	}
	for _, diag := range r.Diagnostics {
		logging.Diagnostic(ctx, r.Name, string(diag.Kind), diag.Path, "token", diag.Token, "reason", diag.Reason)
	}
	if d.metrics == nil {
		return
	}
	d.metrics.Document(string(d.opts.Pass), string(r.Status), r.Duration)
	d.metrics.Citations(string(annotate.KindWrapped), r.Wrapped)
	d.metrics.Citations(string(annotate.KindRejected), r.Rejected)
	d.metrics.Citations(string(annotate.KindAborted), r.Aborted)
	d.metrics.Citations(string(annotate.KindIdem), r.Marked)
	for k, n := range r.Amendments {
		d.metrics.Amendments(string(k), n)
	}
}

// writeAtomic writes data to a temporary file next to path and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".stephanus-*")
	if err != nil {
		return errors.NewIO("create", dir, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.NewIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.NewIO("write", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.NewIO("rename", path, err)
	}
	return nil
}

// writeArchive packs the results that have output, in name order.
func writeArchive(path string, results []DocumentResult) error {
	w, err := archive.NewWriter(path)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Status == StatusFailed || r.output == nil {
			continue
		}
		if err := w.Add(r.Name, r.output); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
}
