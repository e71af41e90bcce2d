// Package annotate lifts citation tokens out of running text into
// citation elements.
//
// Annotation runs in two phases. The resolver folds over the document
// once and collects the nodes whose tail holds a citation of the target
// author. The mutator then rewrites those tails, innermost nodes first.
// Collected nodes stay valid across the rewrite because new elements are
// only ever inserted as following siblings.
package annotate

import (
	"github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
)

// Profile names the markup conventions of a corpus and the author whose
// citations are annotated.
type Profile struct {
	TargetAuthor  string   // author marker text of the cited author
	BackReference string   // marker text meaning "same author as before"
	AuthorTag     string   // author marker element
	TitleTag      string   // title element, never a candidate
	CitationTag   string   // element created around a citation
	IDAttr        string   // attribute holding the identifier
	Namespace     string   // identifier namespace
	Scheme        string   // identifier scheme
	EntryTags     []string // elements delimiting a dictionary entry
	HeadwordTag   string   // headword child of an entry
	Ceiling       string   // largest citable token
}

// DefaultProfile returns the profile for Plutarch's Moralia in the LSJ.
func DefaultProfile() Profile {
	return Profile{
		TargetAuthor:  "Plu.",
		BackReference: "Id.",
		AuthorTag:     "author",
		TitleTag:      "title",
		CitationTag:   "bibl",
		IDAttr:        "n",
		Namespace:     "Perseus:abo",
		Scheme:        "tlg",
		EntryTags:     []string{"div2", "entryFree"},
		HeadwordTag:   "head",
		Ceiling:       stephanus.DefaultCeiling,
	}
}

// Validate reports the first missing or malformed field.
func (p Profile) Validate() error {
	required := []struct{ field, value string }{
		{"target_author", p.TargetAuthor},
		{"back_reference", p.BackReference},
		{"author_tag", p.AuthorTag},
		{"title_tag", p.TitleTag},
		{"citation_tag", p.CitationTag},
		{"id_attr", p.IDAttr},
		{"namespace", p.Namespace},
		{"scheme", p.Scheme},
		{"headword_tag", p.HeadwordTag},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.NewValidation(r.field, "must not be empty")
		}
	}
	if p.TargetAuthor == p.BackReference {
		return errors.NewValidation("back_reference", "must differ from target_author")
	}
	if _, err := stephanus.ParseCanonical(p.Ceiling); err != nil {
		return errors.NewValidation("ceiling", err.Error())
	}
	return nil
}
