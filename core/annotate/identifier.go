package annotate

import (
	"fmt"
	"strconv"

	"github.com/dlclark/regexp2"

	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/worktable"
)

// Identifier is the value of a citation element's id attribute, e.g.
// "Perseus:abo:tlg,0007,069:38c".
type Identifier struct {
	Namespace string
	Scheme    string
	Author    int
	Work      int
	Token     string // canonical token
}

var identifierPattern = regexp2.MustCompile(
	`^(?<namespace>.+):(?<scheme>[A-Za-z]+),(?<author>[0-9]{4}),(?<work>[0-9]{3}):(?<token>[1-9][0-9]{0,3}[a-f])$`,
	regexp2.None)

// NewIdentifier builds the identifier of a token classified into e.
func (p Profile) NewIdentifier(e worktable.Entry, canonical string) Identifier {
	return Identifier{
		Namespace: p.Namespace,
		Scheme:    p.Scheme,
		Author:    e.Author,
		Work:      e.Work,
		Token:     canonical,
	}
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s:%s,%04d,%03d:%s", id.Namespace, id.Scheme, id.Author, id.Work, id.Token)
}

// ParseIdentifier parses an identifier string.
func ParseIdentifier(s string) (Identifier, error) {
	m, err := identifierPattern.FindStringMatch(s)
	if err != nil || m == nil {
		return Identifier{}, errors.NewValidation("identifier", fmt.Sprintf("malformed %q", s))
	}
	group := func(name string) string {
		return m.GroupByName(name).String()
	}
	author, _ := strconv.Atoi(group("author"))
	work, _ := strconv.Atoi(group("work"))
	return Identifier{
		Namespace: group("namespace"),
		Scheme:    group("scheme"),
		Author:    author,
		Work:      work,
		Token:     group("token"),
	}, nil
}
