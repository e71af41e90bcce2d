// Package backref wraps bare back-reference abbreviations ("Id.") in
// author markers so that annotation can follow author chains through
// them.
package backref

import (
	"github.com/antchfx/xpath"
	"github.com/dlclark/regexp2"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/markup"
)

// DefaultScope selects the elements whose descendants are searched.
const DefaultScope = "//div1"

// Wrapper splits element tails around the back-reference text.
type Wrapper struct {
	marker  string
	tag     string
	scope   *xpath.Expr
	pattern *regexp2.Regexp
}

// Marked is an element whose tail held back-references.
type Marked struct {
	Node    *markup.Node
	Path    string
	Created []*markup.Node
}

// New returns a Wrapper that wraps marker in elements named tag inside
// the elements selected by scope. An empty scope means DefaultScope.
func New(marker, tag, scope string) (*Wrapper, error) {
	if marker == "" || tag == "" {
		return nil, errors.NewValidation("back_reference", "marker and tag must not be empty")
	}
	if scope == "" {
		scope = DefaultScope
	}
	expr, err := xpath.Compile(scope)
	if err != nil {
		return nil, errors.NewValidation("scope", err.Error())
	}
	// Not part of a longer word: "Did." is not "Id.".
	pattern, err := regexp2.Compile(`(?<!\w)`+regexp2.Escape(marker), regexp2.None)
	if err != nil {
		return nil, errors.NewValidation("back_reference", err.Error())
	}
	return &Wrapper{marker: marker, tag: tag, scope: expr, pattern: pattern}, nil
}

// Find returns the descendants of the scope elements whose tail contains
// the marker, in document order. Text runs that open an element are not
// searched.
func (w *Wrapper) Find(doc *markup.Document) []*markup.Node {
	var found []*markup.Node
	seen := make(map[*markup.Node]bool)
	for _, scope := range doc.SelectCompiled(nil, w.scope) {
		for _, c := range scope.Children {
			c.Walk(func(n *markup.Node) bool {
				if !seen[n] && w.has(n.Tail) {
					seen[n] = true
					found = append(found, n)
				}
				return true
			})
		}
	}
	return found
}

// Run wraps every back-reference found by Find. The text of the
// document is unchanged.
func (w *Wrapper) Run(doc *markup.Document) []Marked {
	var marked []Marked
	for _, n := range w.Find(doc) {
		path := n.Path()
		marked = append(marked, Marked{Node: n, Path: path, Created: w.Wrap(n)})
	}
	return marked
}

// Wrap splits n's tail at each marker and inserts a marker element for
// each occurrence right after n, keeping occurrences in order.
func (w *Wrapper) Wrap(n *markup.Node) []*markup.Node {
	pieces := w.split(n.Tail)
	if len(pieces) < 2 {
		return nil
	}
	n.Tail = pieces[0]
	var created []*markup.Node
	prev := n
	for _, tail := range pieces[1:] {
		el := markup.NewElement(w.tag)
		el.Text = w.marker
		el.Tail = tail
		prev.InsertAfter(el)
		created = append(created, el)
		prev = el
	}
	return created
}

// split cuts s around each marker occurrence, dropping the markers.
func (w *Wrapper) split(s string) []string {
	runes := []rune(s)
	var pieces []string
	last := 0
	m, _ := w.pattern.FindRunesMatch(runes)
	for m != nil {
		pieces = append(pieces, string(runes[last:m.Index]))
		last = m.Index + m.Length
		m, _ = w.pattern.FindNextMatch(m)
	}
	return append(pieces, string(runes[last:]))
}

func (w *Wrapper) has(s string) bool {
	if s == "" {
		return false
	}
	ok, _ := w.pattern.MatchString(s)
	return ok
}
