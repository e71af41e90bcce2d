// Package worktable maps canonical citation tokens to the sub-work of the
// Moralia that contains them.
//
// A Table is an ordered list of work ranges. Classification is a linear
// scan for the first entry whose end boundary is not smaller than the
// token, so the table must be sorted by End and its ranges must neither
// overlap nor leave gaps. Check reports violations; Classify assumes the
// table is sound.
package worktable

import (
	"fmt"
	"sort"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
)

// Entry is one work range.
type Entry struct {
	Author       int             `json:"author" yaml:"author"`
	Work         int             `json:"work" yaml:"work"`
	Abbreviation string          `json:"abbreviation" yaml:"abbreviation"`
	Start        stephanus.Token `json:"start" yaml:"start"`
	End          stephanus.Token `json:"end" yaml:"end"`
	Title        string          `json:"title,omitempty" yaml:"title,omitempty"`
}

// Contains reports whether tok lies within [Start, End].
func (e Entry) Contains(tok stephanus.Token) bool {
	return e.Start.NotAfter(tok) && tok.NotAfter(e.End)
}

// Key returns the "AAAA,WWW" form used in citation identifiers.
func (e Entry) Key() string {
	return fmt.Sprintf("%04d,%03d", e.Author, e.Work)
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s-%s", e.Key(), e.Abbreviation, e.Start.Canonical(), e.End.Canonical())
}

// Table is an immutable, End-ordered list of work ranges. It is safe for
// concurrent use.
type Table struct {
	entries []Entry
}

// New returns a Table of entries sorted by End. The input slice is copied.
func New(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, errors.NewValidation("table", "no work ranges")
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].End.Compare(sorted[j].End) < 0
	})
	return &Table{entries: sorted}, nil
}

// Classify returns the entry owning tok: the first entry whose End is not
// smaller than tok. A token beyond every entry fails with
// errors.ErrOutOfRange.
func (t *Table) Classify(tok stephanus.Token) (Entry, error) {
	for _, e := range t.entries {
		if tok.NotAfter(e.End) {
			return e, nil
		}
	}
	return Entry{}, errors.NewOutOfRange(tok.String(), "beyond "+t.Max().Canonical())
}

// ClassifyRaw parses raw and classifies it.
func (t *Table) ClassifyRaw(raw string) (Entry, error) {
	tok, err := stephanus.Parse(raw)
	if err != nil {
		return Entry{}, err
	}
	return t.Classify(tok)
}

// Max returns the last boundary of the table.
func (t *Table) Max() stephanus.Token {
	return t.entries[len(t.entries)-1].End
}

// Lookup finds the entry for an author and work number.
func (t *Table) Lookup(author, work int) (Entry, error) {
	for _, e := range t.entries {
		if e.Author == author && e.Work == work {
			return e, nil
		}
	}
	return Entry{}, errors.NewNotFound("work", fmt.Sprintf("%04d,%03d", author, work))
}

// HasAuthor reports whether any entry belongs to author.
func (t *Table) HasAuthor(author int) bool {
	for _, e := range t.entries {
		if e.Author == author {
			return true
		}
	}
	return false
}

// Authors returns the distinct authors in ascending order.
func (t *Table) Authors() []int {
	seen := make(map[int]bool)
	var authors []int
	for _, e := range t.entries {
		if !seen[e.Author] {
			seen[e.Author] = true
			authors = append(authors, e.Author)
		}
	}
	sort.Ints(authors)
	return authors
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// IssueKind classifies a problem found by Check.
type IssueKind string

const (
	IssueInverted  IssueKind = "inverted"  // Start after End
	IssueOverlap   IssueKind = "overlap"   // range starts at or before the previous End
	IssueGap       IssueKind = "gap"       // range starts after the section following the previous End
	IssueDuplicate IssueKind = "duplicate" // author and work repeated
)

// Issue is one problem found by Check.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Entry   Entry     `json:"entry"`
	Message string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Kind, i.Entry, i.Message)
}

// Check verifies that the ranges partition the citation space: each range
// is well formed, starts right after the previous one ends, and every
// identifier is unique.
func (t *Table) Check() []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for i, e := range t.entries {
		if e.End.Compare(e.Start) < 0 {
			issues = append(issues, Issue{Kind: IssueInverted, Entry: e,
				Message: fmt.Sprintf("start %s is after end %s", e.Start.Canonical(), e.End.Canonical())})
		}
		if seen[e.Key()] {
			issues = append(issues, Issue{Kind: IssueDuplicate, Entry: e, Message: "identifier " + e.Key() + " repeated"})
		}
		seen[e.Key()] = true

		if i == 0 {
			continue
		}
		prev := t.entries[i-1]
		want := prev.End.Next()
		switch c := e.Start.Compare(want); {
		case c < 0:
			issues = append(issues, Issue{Kind: IssueOverlap, Entry: e,
				Message: fmt.Sprintf("starts at %s, before %s ends at %s", e.Start.Canonical(), prev.Abbreviation, prev.End.Canonical())})
		case c > 0 && !adjacentPage(prev.End, e.Start):
			issues = append(issues, Issue{Kind: IssueGap, Entry: e,
				Message: fmt.Sprintf("starts at %s, expected %s", e.Start.Canonical(), want.Canonical())})
		}
	}
	return issues
}

// adjacentPage tolerates pages that end before section f: a work ending
// at 14c followed by one starting at 15a leaves no citable gap when the
// page has only three sections. Only a start at section a of the next
// page qualifies.
func adjacentPage(end, start stephanus.Token) bool {
	return start.Page == end.Page+1 && start.Section == 'a'
}
