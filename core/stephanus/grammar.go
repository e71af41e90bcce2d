package stephanus

import (
	"github.com/dlclark/regexp2"

	"github.com/FocuswithJustin/stephanus/core/errors"
)

// DefaultCeiling is the last section of the Moralia in the Wyttenbach edition.
const DefaultCeiling = "1147a"

// Word boundaries follow Unicode word characters, so "2.510fα" is not a
// token. Go's regexp has neither look-behind nor Unicode \b, hence regexp2.
var (
	qualifiedPattern = regexp2.MustCompile(`\b[12]\.[1-9][0-9]{0,3}[a-f]\b`, regexp2.None)
	barePattern      = regexp2.MustCompile(`(?<![0-9]\.)\b[1-9][0-9]{0,3}[a-f]\b`, regexp2.None)
)

// Shape identifies which of the two token shapes matched.
type Shape int

const (
	// ShapeQualified is "<volume>.<page><section>".
	ShapeQualified Shape = iota + 1
	// ShapeBare is "<page><section>".
	ShapeBare
)

func (s Shape) String() string {
	switch s {
	case ShapeQualified:
		return "qualified"
	case ShapeBare:
		return "bare"
	default:
		return "unknown"
	}
}

// Status records what the grammar decided about a token-shaped match.
type Status int

const (
	// Accepted tokens are citations of the configured author.
	Accepted Status = iota
	// AboveCeiling tokens have the right shape but exceed the ceiling and
	// are treated as ordinary text.
	AboveCeiling
	// Malformed tokens matched a pattern but could not be parsed. This
	// signals a grammar bug rather than bad input.
	Malformed
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case AboveCeiling:
		return "above-ceiling"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Match is one token-shaped span of a text.
type Match struct {
	Raw    string // Raw token as found
	Start  int    // Byte offset of the first character
	End    int    // Byte offset after the last character
	Shape  Shape
	Status Status
	Token  Token // Parsed token; zero when Status is Malformed
	Err    error // Parse error when Status is Malformed

	// Chained is set for a qualified match whose volume is itself
	// preceded by "<digit>.", as in "1.2.510f".
	Chained bool
}

// Split is a text cut around its first accepted token.
type Split struct {
	Prefix string
	Raw    string
	Suffix string
	Match  Match
}

// Grammar finds citation tokens in text. A Grammar is immutable and safe
// for concurrent use.
type Grammar struct {
	ceiling Token
}

// New returns a Grammar that accepts tokens up to and including ceiling.
func New(ceiling Token) *Grammar {
	return &Grammar{ceiling: Token{Page: ceiling.Page, Section: ceiling.Section}}
}

// NewFromString is like New but parses the ceiling.
func NewFromString(ceiling string) (*Grammar, error) {
	tok, err := Parse(ceiling)
	if err != nil {
		return nil, errors.Wrap(err, "ceiling")
	}
	return New(tok), nil
}

// Default returns a Grammar with DefaultCeiling.
func Default() *Grammar {
	return New(MustParse(DefaultCeiling))
}

// Ceiling returns the largest accepted token.
func (g *Grammar) Ceiling() Token {
	return g.ceiling
}

// Scan returns every token-shaped match of text, left to right and
// non-overlapping, whatever its status. At any position the qualified
// shape takes precedence over the bare one.
func (g *Grammar) Scan(text string) []Match {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	offsets := byteOffsets(runes)

	var matches []Match
	pos := 0
	for pos < len(runes) {
		q := findAt(qualifiedPattern, runes, pos)
		b := findAt(barePattern, runes, pos)

		m, shape := q, ShapeQualified
		if q == nil || (b != nil && b.Index < q.Index) {
			m, shape = b, ShapeBare
		}
		if m == nil {
			break
		}

		start, end := m.Index, m.Index+m.Length
		match := Match{
			Raw:   string(runes[start:end]),
			Start: offsets[start],
			End:   offsets[end],
			Shape: shape,
		}
		if shape == ShapeQualified && start >= 2 && runes[start-1] == '.' && isDigit(runes[start-2]) {
			match.Chained = true
		}

		tok, err := Parse(match.Raw)
		switch {
		case err != nil:
			match.Status = Malformed
			match.Err = err
		case !tok.NotAfter(g.ceiling):
			match.Token = tok
			match.Status = AboveCeiling
		default:
			match.Token = tok
			match.Status = Accepted
		}
		matches = append(matches, match)
		pos = end
	}
	return matches
}

// FindAll returns the accepted tokens of text.
func (g *Grammar) FindAll(text string) []Match {
	var accepted []Match
	for _, m := range g.Scan(text) {
		if m.Status == Accepted {
			accepted = append(accepted, m)
		}
	}
	return accepted
}

// FindFirst cuts text around its first accepted token.
func (g *Grammar) FindFirst(text string) (Split, bool) {
	for _, m := range g.Scan(text) {
		if m.Status != Accepted {
			continue
		}
		return Split{
			Prefix: text[:m.Start],
			Raw:    m.Raw,
			Suffix: text[m.End:],
			Match:  m,
		}, true
	}
	return Split{}, false
}

// HasToken reports whether text contains at least one accepted token.
func (g *Grammar) HasToken(text string) bool {
	_, ok := g.FindFirst(text)
	return ok
}

// SplitFirst is FindFirst with the ambiguity guard: a first token that
// sits in a dotted numeric chain ("1.2.510f") can be read with either
// number as its volume and fails with errors.ErrAmbiguousSplit. A text
// without accepted tokens returns ok=false and no error.
func (g *Grammar) SplitFirst(text string) (split Split, ok bool, err error) {
	split, ok = g.FindFirst(text)
	if !ok {
		return Split{}, false, nil
	}
	if split.Match.Chained {
		return Split{}, false, errors.Wrapf(errors.ErrAmbiguousSplit, "%q", text[chainStart(text, split.Match.Start):split.Match.End])
	}
	return split, true, nil
}

// chainStart walks back over "<digits>." groups preceding offset.
func chainStart(text string, offset int) int {
	i := offset
	for i >= 2 && text[i-1] == '.' && text[i-2] >= '0' && text[i-2] <= '9' {
		i -= 2
		for i > 0 && text[i-1] >= '0' && text[i-1] <= '9' {
			i--
		}
	}
	return i
}

func findAt(re *regexp2.Regexp, runes []rune, start int) *regexp2.Match {
	m, err := re.FindRunesMatchStartingAt(runes, start)
	if err != nil {
		// Only a match timeout can fail and none is configured.
		return nil
	}
	return m
}

func byteOffsets(runes []rune) []int {
	offsets := make([]int, len(runes)+1)
	n := 0
	for i, r := range runes {
		offsets[i] = n
		n += len(string(r))
	}
	offsets[len(runes)] = n
	return offsets
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
