// Package amend repairs existing citation elements: the token in the
// identifier must match the token in the element's text, the work must
// contain the token, and the element carries a "[Abbr.]" title naming
// the work.
package amend

import (
	"fmt"
	"strings"

	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/stephanus/core/annotate"
	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/markup"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
	"github.com/FocuswithJustin/stephanus/core/worktable"
)

// Amendment names a change made to a citation element.
type Amendment string

const (
	FixedToken       Amendment = "fixed_n_stephanus"
	FixedWork        Amendment = "fixed_n_work"
	FixedTitle       Amendment = "title_element_text_fixed"
	AddedTitleAuthor Amendment = "title_element_added_post_author"
	AddedTitle       Amendment = "title_element_added_no_author"
)

// Problem names a citation element that could not be amended.
type Problem string

const (
	NoToken          Problem = "no_token_in_text"
	OutOfRange       Problem = "token_out_of_range"
	UnknownWork      Problem = "unknown_work"
	UnexpectedAuthor Problem = "unexpected_author"
)

// Result summarizes an amendment run.
type Result struct {
	Elements    int // citation elements of the table's authors
	Amended     int // elements with at least one amendment
	Counts      map[Amendment]int
	Problems    map[Problem]int
	Diagnostics []annotate.Diagnostic
}

// Amender repairs citation elements.
type Amender struct {
	profile annotate.Profile
	grammar *stephanus.Grammar
	table   *worktable.Table
	query   *xpath.Expr
	authors map[string]bool
}

// New returns an Amender for the citation elements of profile p.
func New(p annotate.Profile, t *worktable.Table) (*Amender, error) {
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
	q, err := xpath.Compile(fmt.Sprintf("//%s[@%s]", p.CitationTag, p.IDAttr))
	if err != nil {
		return nil, errors.NewValidation("citation_tag", err.Error())
	}
	authors := make(map[string]bool)
	for _, name := range []string{p.TargetAuthor, p.BackReference, strings.ToLower(p.BackReference), "Ps.-" + p.TargetAuthor} {
		authors[name] = true
	}
	return &Amender{
		profile: p,
		grammar: g,
		table:   t,
		query:   q,
		authors: authors,
	}, nil
}

// Run amends every citation element of doc whose identifier names one of
// the table's authors. Elements of other authors and elements without a
// well-formed identifier are left alone.
func (a *Amender) Run(doc *markup.Document) Result {
	res := Result{
		Counts:   make(map[Amendment]int),
		Problems: make(map[Problem]int),
	}
	for _, el := range doc.SelectCompiled(nil, a.query) {
		id, err := annotate.ParseIdentifier(el.Attr(a.profile.IDAttr))
		if err != nil || id.Namespace != a.profile.Namespace || id.Scheme != a.profile.Scheme || !a.table.HasAuthor(id.Author) {
			continue
		}
		res.Elements++
		diag := annotate.Diagnostic{
			Path:     el.Path(),
			Headword: annotate.Headword(el, a.profile),
		}
		if m := a.grammar.FindAll(el.Itertext()); len(m) > 0 {
			diag.Token = m[0].Raw
		}
		amendments, problem := a.amend(el, id)
		diag.Identifier = el.Attr(a.profile.IDAttr)
		if problem != "" {
			res.Problems[problem]++
			diag.Kind = annotate.KindRejected
			diag.Reason = string(problem)
			res.Diagnostics = append(res.Diagnostics, diag)
		}
		if len(amendments) == 0 {
			continue
		}
		res.Amended++
		reasons := make([]string, len(amendments))
		for i, am := range amendments {
			res.Counts[am]++
			reasons[i] = string(am)
		}
		diag.Kind = annotate.KindAmended
		diag.Reason = strings.Join(reasons, ",")
		res.Diagnostics = append(res.Diagnostics, diag)
	}
	return res
}

// amend applies the repairs to one element. A problem stops the repairs
// that depend on it; an unexpected author is reported but does not stop
// anything.
func (a *Amender) amend(el *markup.Node, id annotate.Identifier) ([]Amendment, Problem) {
	var (
		amendments []Amendment
		problem    Problem
	)

	entry, err := a.table.Lookup(id.Author, id.Work)
	if err != nil {
		return nil, UnknownWork
	}

	matches := a.grammar.FindAll(el.Itertext())
	if len(matches) == 0 {
		return nil, NoToken
	}
	tok := matches[0].Token
	canonical := tok.Canonical()

	if id.Token != canonical {
		id.Token = canonical
		amendments = append(amendments, FixedToken)
	}
	if !entry.Contains(tok) {
		moved, err := a.table.Classify(tok)
		if err != nil {
			a.setID(el, id)
			return amendments, OutOfRange
		}
		entry = moved
		id.Author, id.Work = moved.Author, moved.Work
		amendments = append(amendments, FixedWork)
	}
	a.setID(el, id)

	author := el.Find(a.profile.AuthorTag)
	if author != nil && !a.authors[strings.TrimSpace(author.Text)] {
		problem = UnexpectedAuthor
	}

	want := "[" + entry.Abbreviation + "]"
	if title := el.Find(a.profile.TitleTag); title != nil {
		current := strings.NewReplacer("[", "", "]", "").Replace(title.Itertext())
		if current != entry.Abbreviation {
			title.Text = want
			title.Children = nil
			amendments = append(amendments, FixedTitle)
		}
		return amendments, problem
	}

	title := markup.NewElement(a.profile.TitleTag)
	title.Text = want
	if author != nil {
		title.Tail = author.Tail
		author.Tail = " "
		author.InsertAfter(title)
		amendments = append(amendments, AddedTitleAuthor)
	} else {
		title.Tail = " " + el.Text
		el.Text = ""
		el.Insert(0, title)
		amendments = append(amendments, AddedTitle)
	}
	return amendments, problem
}

func (a *Amender) setID(el *markup.Node, id annotate.Identifier) {
	el.Set(a.profile.IDAttr, id.String())
}
