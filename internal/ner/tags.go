// Package ner extracts the named entities the worker tags inline in its
// output and resolves them against the linked-data oracle.
//
// The worker marks entities as <TYPE>text</TYPE>, where TYPE is an
// upper-case label such as PERSON, GPE or CARDINAL. [Extract] finds them,
// [StripTags] removes every tag, and a [Resolver] attaches knowledge-base
// identifiers and translation candidates to each entity.
package ner

import (
	"regexp"
	"strings"
)

var (
	// tagPattern matches one tagged span. Go's RE2 has no back-references,
	// so equality of the open and close labels is checked by the caller.
	tagPattern = regexp.MustCompile(`<([A-Z_]+)>([^<]+)</([A-Z_]+)>`)

	anyTag = regexp.MustCompile(`</?[A-Z_]+>`)
)

// Span is one tagged entity in the order it appears in the text.
type Span struct {
	Text string
	Type string
}

// Extract returns every <TYPE>text</TYPE> span whose open and close labels
// agree.
func Extract(text string) []Span {
	var out []Span
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != m[3] {
			continue
		}
		out = append(out, Span{Text: m[2], Type: m[1]})
	}
	return out
}

// StripTags removes all entity tags, keeping their inner text.
func StripTags(text string) string {
	return anyTag.ReplaceAllString(text, "")
}

// Query turns tagged text into an oracle query: tags are removed, hyphens and
// apostrophes become spaces, and the result is trimmed.
func Query(text string) string {
	q := StripTags(text)
	q = strings.NewReplacer("-", " ", "'", " ").Replace(q)
	return strings.TrimSpace(q)
}
