package annotate

import (
	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/markup"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
	"github.com/FocuswithJustin/stephanus/core/worktable"
)

// Kind classifies a diagnostic.
type Kind string

const (
	KindWrapped  Kind = "wrapped"
	KindRejected Kind = "rejected"
	KindAborted  Kind = "aborted"
	KindIdem     Kind = "idem"
	KindAmended  Kind = "amended"
)

// Diagnostic records one outcome at one node.
type Diagnostic struct {
	Kind       Kind   `json:"kind"`
	Path       string `json:"path"`
	Headword   string `json:"headword,omitempty"`
	Token      string `json:"token,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Result summarizes an annotation run over one document.
type Result struct {
	Wrapped     int
	Rejected    int
	Aborted     int
	Diagnostics []Diagnostic
	Errors      []error // one *errors.NodeError per aborted node
}

// Add folds other into r.
func (r *Result) Add(other Result) {
	r.Wrapped += other.Wrapped
	r.Rejected += other.Rejected
	r.Aborted += other.Aborted
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Annotator wraps the citations of one author in documents. It holds no
// per-document state and is safe for concurrent use on distinct
// documents.
type Annotator struct {
	profile  Profile
	grammar  *stephanus.Grammar
	table    *worktable.Table
	resolver *Resolver
	mutator  *Mutator
}

// New returns an Annotator for profile p classifying with table t.
func New(p Profile, t *worktable.Table) (*Annotator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NewValidation("table", "no work table")
	}
	g, err := stephanus.NewFromString(p.Ceiling)
	if err != nil {
		return nil, err
	}
	return &Annotator{
		profile:  p,
		grammar:  g,
		table:    t,
		resolver: NewResolver(p, g),
		mutator:  NewMutator(p, g, t),
	}, nil
}

// Profile returns the annotator's profile.
func (a *Annotator) Profile() Profile { return a.profile }

// Grammar returns the token grammar.
func (a *Annotator) Grammar() *stephanus.Grammar { return a.grammar }

// Table returns the work table.
func (a *Annotator) Table() *worktable.Table { return a.table }

// Candidates returns the nodes Run would rewrite.
func (a *Annotator) Candidates(doc *markup.Document) []Candidate {
	return a.resolver.Candidates(doc)
}

// Run annotates doc in place. Rejected tokens are recorded and left in
// the text. A node whose tail cannot be split is left untouched and
// reported as aborted; the rest of the document is still annotated.
func (a *Annotator) Run(doc *markup.Document) Result {
	var res Result
	for _, c := range a.resolver.Candidates(doc) {
		created, rejections, err := a.mutator.WrapAll(c.Node)
		if err != nil {
			nodeErr := &errors.NodeError{Path: c.Path, Headword: c.Headword, Err: err}
			res.Aborted++
			res.Errors = append(res.Errors, nodeErr)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:     KindAborted,
				Path:     c.Path,
				Headword: c.Headword,
				Reason:   err.Error(),
			})
			continue
		}
		for _, el := range created {
			res.Wrapped++
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:       KindWrapped,
				Path:       c.Path,
				Headword:   c.Headword,
				Token:      el.Text,
				Identifier: el.Attr(a.profile.IDAttr),
			})
		}
		for _, rej := range rejections {
			res.Rejected++
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:     KindRejected,
				Path:     c.Path,
				Headword: c.Headword,
				Token:    rej.Token,
				Reason:   rej.Err.Error(),
			})
		}
	}
	return res
}
