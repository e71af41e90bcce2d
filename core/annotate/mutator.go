package annotate

import (
	"strings"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/markup"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
	"github.com/FocuswithJustin/stephanus/core/worktable"
)

// Wrap is one planned citation element.
type Wrap struct {
	Raw        string
	Identifier Identifier
	Entry      worktable.Entry
	Tail       string // text after the token up to the next wrapped token
}

// Rejection is a token left in the text. Err is a *errors.TokenError
// wrapping errors.ErrOutOfRange or errors.ErrMalformedToken.
type Rejection struct {
	Token string
	Err   error
}

// Plan is the complete rewrite of one tail. Prefix followed by each
// wrap's Raw and Tail reassembles the original tail.
type Plan struct {
	Prefix     string
	Wraps      []Wrap
	Rejections []Rejection
}

// Text returns the tail the plan was made from.
func (p Plan) Text() string {
	var sb strings.Builder
	sb.WriteString(p.Prefix)
	for _, w := range p.Wraps {
		sb.WriteString(w.Raw)
		sb.WriteString(w.Tail)
	}
	return sb.String()
}

// Mutator splits tails around citation tokens.
type Mutator struct {
	profile Profile
	grammar *stephanus.Grammar
	table   *worktable.Table
}

// NewMutator returns a Mutator.
func NewMutator(p Profile, g *stephanus.Grammar, t *worktable.Table) *Mutator {
	return &Mutator{profile: p, grammar: g, table: t}
}

// Plan computes every split of tail without touching the tree.
//
// Accepted tokens that classify are planned as wraps. Tokens above the
// ceiling, tokens the table rejects and tokens that fail to parse are
// returned as rejections and stay in the surrounding text. A token in a
// dotted numeric chain fails the whole plan with errors.ErrAmbiguousSplit.
func (m *Mutator) Plan(tail string) (Plan, error) {
	var (
		plan    Plan
		pending strings.Builder
		target  = &plan.Prefix
		last    int
	)
	flush := func() {
		*target = pending.String()
		pending.Reset()
	}

	for _, match := range m.grammar.Scan(tail) {
		switch match.Status {
		case stephanus.AboveCeiling:
			plan.Rejections = append(plan.Rejections, Rejection{
				Token: match.Raw,
				Err:   errors.NewOutOfRange(match.Raw, "above ceiling "+m.grammar.Ceiling().Canonical()),
			})
			continue
		case stephanus.Malformed:
			plan.Rejections = append(plan.Rejections, Rejection{Token: match.Raw, Err: match.Err})
			continue
		}

		if match.Chained {
			start := match.Start
			for start > 0 && (tail[start-1] == '.' || tail[start-1] >= '0' && tail[start-1] <= '9') {
				start--
			}
			return Plan{}, errors.Wrapf(errors.ErrAmbiguousSplit, "%q", tail[start:match.End])
		}

		entry, err := m.table.Classify(match.Token)
		if err != nil {
			if !errors.Is(err, errors.ErrOutOfRange) {
				return Plan{}, err
			}
			plan.Rejections = append(plan.Rejections, Rejection{Token: match.Raw, Err: errors.NewOutOfRange(match.Raw, "no work ends at or after it")})
			continue
		}

		pending.WriteString(tail[last:match.Start])
		flush()
		plan.Wraps = append(plan.Wraps, Wrap{
			Raw:        match.Raw,
			Identifier: m.profile.NewIdentifier(entry, match.Token.Canonical()),
			Entry:      entry,
		})
		target = &plan.Wraps[len(plan.Wraps)-1].Tail
		last = match.End
	}
	pending.WriteString(tail[last:])
	flush()

	if plan.Text() != tail {
		return Plan{}, errors.Wrapf(errors.ErrTextChanged, "plan of %q", tail)
	}
	return plan, nil
}

// WrapAll rewrites the tail of n, inserting a citation element after n
// for every planned wrap. Each new element's tail runs to the next
// wrapped token. On error n is left untouched.
func (m *Mutator) WrapAll(n *markup.Node) ([]*markup.Node, []Rejection, error) {
	if n.Parent == nil {
		return nil, nil, errors.NewValidation("node", "the root element has no tail")
	}
	plan, err := m.Plan(n.Tail)
	if err != nil {
		return nil, nil, err
	}
	return m.Apply(n, plan), plan.Rejections, nil
}

// Apply performs a plan made from n's tail.
func (m *Mutator) Apply(n *markup.Node, plan Plan) []*markup.Node {
	n.Tail = plan.Prefix
	created := make([]*markup.Node, 0, len(plan.Wraps))
	prev := n
	for _, w := range plan.Wraps {
		el := markup.NewElement(m.profile.CitationTag, markup.Attr{Name: m.profile.IDAttr, Value: w.Identifier.String()})
		el.Text = w.Raw
		el.Tail = w.Tail
		prev.InsertAfter(el)
		created = append(created, el)
		prev = el
	}
	return created
}
