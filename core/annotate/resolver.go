package annotate

import (
	"strings"

	"github.com/FocuswithJustin/stephanus/core/markup"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
)

// Candidate is a node whose tail holds citations of the target author.
type Candidate struct {
	Node     *markup.Node
	Path     string
	Headword string
}

// authorship is the fold accumulator: the text of the last author marker
// that was not a back-reference.
type authorship struct {
	current string
}

// see returns the accumulator after visiting an author marker. A
// back-reference keeps the current author, so chains of any length
// inherit the nearest real one.
func (a authorship) see(marker string, p Profile) authorship {
	if marker == p.BackReference {
		return a
	}
	return authorship{current: marker}
}

// Resolver collects annotation candidates.
type Resolver struct {
	profile Profile
	grammar *stephanus.Grammar
}

// NewResolver returns a Resolver for profile p using grammar g.
func NewResolver(p Profile, g *stephanus.Grammar) *Resolver {
	return &Resolver{profile: p, grammar: g}
}

// Candidates returns the candidate nodes of doc in post-order: a node
// comes after all of its descendants.
//
// Author markers update the governing author when they are entered,
// before their own subtree and tail, so the new author is visible to
// descendants and to everything after the marker. The candidate test on
// a node runs after its children have been folded.
func (r *Resolver) Candidates(doc *markup.Document) []Candidate {
	_, out := r.fold(doc.Root, authorship{}, nil)
	return out
}

func (r *Resolver) fold(n *markup.Node, acc authorship, out []Candidate) (authorship, []Candidate) {
	if n.IsElement(r.profile.AuthorTag) {
		acc = acc.see(strings.TrimSpace(n.Text), r.profile)
	}
	for _, c := range n.Children {
		acc, out = r.fold(c, acc, out)
	}
	if r.isCandidate(n, acc) {
		out = append(out, Candidate{
			Node:     n,
			Path:     n.Path(),
			Headword: Headword(n, r.profile),
		})
	}
	return acc, out
}

func (r *Resolver) isCandidate(n *markup.Node, acc authorship) bool {
	switch {
	case acc.current != r.profile.TargetAuthor:
		return false
	case n.Parent == nil:
		return false
	case n.IsElement(r.profile.TitleTag):
		return false
	case n.HasAncestor(r.profile.CitationTag):
		return false
	}
	return r.grammar.HasToken(n.Tail)
}

// Headword returns the headword of the entry enclosing n, or "".
func Headword(n *markup.Node, p Profile) string {
	entry := n.Ancestor(p.EntryTags...)
	if entry == nil {
		return ""
	}
	head := entry.Find(p.HeadwordTag)
	if head == nil {
		return ""
	}
	return strings.TrimSpace(head.Itertext())
}
