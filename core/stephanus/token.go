// Package stephanus recognizes Stephanus-style citation tokens of the
// two-volume Wyttenbach edition of Plutarch's Moralia.
//
// Two token shapes are understood:
//
//   - qualified: "<volume>.<page><section>", e.g. "2.510f"
//   - bare:      "<page><section>", e.g. "625b"
//
// The volume is 1 or 2, the page has one to four digits with no leading
// zero and the section is a letter a to f. The canonical form of a token
// drops the volume: "2.510f" and "510f" are both "510f".
package stephanus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/stephanus/core/errors"
)

// MaxPageDigits is the longest page number a token may carry.
const MaxPageDigits = 4

// Token is a parsed citation token.
type Token struct {
	// Volume is 1 or 2 for qualified tokens and 0 for bare ones.
	Volume int `json:"volume,omitempty"`

	// Page is the page number (1-9999).
	Page int `json:"page"`

	// Section is the section letter ('a'-'f').
	Section byte `json:"section"`
}

// tokenGrammar is the participle grammar for a single citation token.
// Examples: "510f", "2.510f", " 1147a "
//
//nolint:govet // participle grammar tags are not standard struct tags
type tokenGrammar struct {
	Volume  *string `( @Digits "." )?`
	Page    string  `@Digits`
	Section string  `@Section`
}

// tokenLexer splits a token into digits, dots and letters. Section is
// lexed as any lower-case letter so that "510g" fails validation with a
// useful message instead of a lexer error.
var tokenLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Digits", Pattern: `[0-9]+`},
	{Name: "Section", Pattern: `[a-z]`},
	{Name: "Punct", Pattern: `\.`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var tokenParser = participle.MustBuild[tokenGrammar](
	participle.Lexer(tokenLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse parses a string that holds exactly one citation token.
// Surrounding whitespace is ignored. Anything else fails with
// errors.ErrMalformedToken.
func Parse(raw string) (Token, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Token{}, errors.NewMalformed(raw, "empty token")
	}

	parsed, err := tokenParser.ParseString("", s)
	if err != nil {
		return Token{}, &errors.TokenError{Token: raw, Reason: err.Error(), Err: errors.ErrMalformedToken}
	}

	var tok Token
	if parsed.Volume != nil {
		switch *parsed.Volume {
		case "1":
			tok.Volume = 1
		case "2":
			tok.Volume = 2
		default:
			return Token{}, errors.NewMalformed(raw, "volume must be 1 or 2")
		}
	}

	if len(parsed.Page) > MaxPageDigits {
		return Token{}, errors.NewMalformed(raw, fmt.Sprintf("page has more than %d digits", MaxPageDigits))
	}
	if parsed.Page[0] == '0' {
		return Token{}, errors.NewMalformed(raw, "page has a leading zero")
	}
	page, err := strconv.Atoi(parsed.Page)
	if err != nil {
		return Token{}, &errors.TokenError{Token: raw, Reason: "page is not a number", Err: errors.ErrMalformedToken}
	}
	tok.Page = page

	if len(parsed.Section) != 1 || parsed.Section[0] < 'a' || parsed.Section[0] > 'f' {
		return Token{}, errors.NewMalformed(raw, "section must be a letter a-f")
	}
	tok.Section = parsed.Section[0]

	return tok, nil
}

// ParseCanonical parses a bare token such as a table boundary.
func ParseCanonical(s string) (Token, error) {
	tok, err := Parse(s)
	if err != nil {
		return Token{}, err
	}
	if tok.Volume != 0 {
		return Token{}, errors.NewMalformed(s, "canonical token must not carry a volume")
	}
	return tok, nil
}

// MustParse is like Parse but panics on error. It is meant for constants.
func MustParse(raw string) Token {
	tok, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("stephanus: %v", err))
	}
	return tok
}

// Canonicalize returns the canonical form of a raw token, e.g.
// "2.510f" -> "510f".
func Canonicalize(raw string) (string, error) {
	tok, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return tok.Canonical(), nil
}

// Canonical returns the page and section without the volume.
func (t Token) Canonical() string {
	return strconv.Itoa(t.Page) + string(t.Section)
}

// String returns the token as it would be written in running text.
func (t Token) String() string {
	if t.Volume > 0 {
		return strconv.Itoa(t.Volume) + "." + t.Canonical()
	}
	return t.Canonical()
}

// Qualified reports whether the token carries a volume.
func (t Token) Qualified() bool {
	return t.Volume > 0
}

// IsZero reports whether t is the zero Token.
func (t Token) IsZero() bool {
	return t.Page == 0 && t.Section == 0
}

// Compare orders tokens by page number, then by section letter.
// The volume is ignored. It returns -1, 0 or +1.
func (t Token) Compare(other Token) int {
	switch {
	case t.Page < other.Page:
		return -1
	case t.Page > other.Page:
		return 1
	case t.Section < other.Section:
		return -1
	case t.Section > other.Section:
		return 1
	}
	return 0
}

// NotAfter reports whether t is not larger than boundary.
func (t Token) NotAfter(boundary Token) bool {
	return t.Compare(boundary) <= 0
}

// Next returns the token immediately after t, e.g. "14c" -> "14d" and
// "74f" -> "75a".
func (t Token) Next() Token {
	if t.Section < 'f' {
		return Token{Page: t.Page, Section: t.Section + 1}
	}
	return Token{Page: t.Page + 1, Section: 'a'}
}
