// Package encoding provides the XML escaping used when serializing
// annotated documents.
package encoding

import "strings"

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\r", "&#13;",
	)
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"\t", "&#9;",
		"\n", "&#10;",
		"\r", "&#13;",
	)
)

// EscapeXMLText escapes character data. Quotes are left alone.
func EscapeXMLText(s string) string {
	if !strings.ContainsAny(s, "&<>\r") {
		return s
	}
	return textEscaper.Replace(s)
}

// EscapeXMLAttr escapes an attribute value for a double-quoted attribute.
// Whitespace other than the space is written as a character reference so
// that it survives attribute value normalization.
func EscapeXMLAttr(s string) string {
	if !strings.ContainsAny(s, "&<>\"\t\n\r") {
		return s
	}
	return attrEscaper.Replace(s)
}

// EscapeComment makes s safe inside <!-- -->: "--" cannot appear in a
// comment, and a trailing "-" would merge with the closing delimiter.
func EscapeComment(s string) string {
	s = strings.ReplaceAll(s, "--", "- -")
	if strings.HasSuffix(s, "-") {
		s += " "
	}
	return s
}
