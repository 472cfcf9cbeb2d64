package glossary

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hlt-mt/smarterp/internal/fuzzy"
	"github.com/hlt-mt/smarterp/internal/ner"
	"github.com/hlt-mt/smarterp/internal/observe"
)

const defaultThreshold = 0.8

// Term is a glossary term found in a transcript, paired with the target
// variant chosen for it.
type Term struct {
	Source string `json:"src"`
	Target string `json:"tgt"`
}

// MatcherOption is a functional option for [NewMatcher].
type MatcherOption func(*Matcher)

// WithThreshold sets the minimum similarity between the word span a term
// was found in and the term itself. Default: 0.8.
func WithThreshold(t float64) MatcherOption {
	return func(m *Matcher) { m.threshold = t }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(mt *observe.Metrics) MatcherOption {
	return func(m *Matcher) { m.metrics = mt }
}

// Matcher finds glossary terms in text. It is read-only after construction.
type Matcher struct {
	threshold float64
	metrics   *observe.Metrics
}

// NewMatcher returns a Matcher configured by opts.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{threshold: defaultThreshold}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// MatchTranscriptOnly pairs every entry found in the transcript with its
// first target variant. The translation is not consulted.
func (m *Matcher) MatchTranscriptOnly(ctx context.Context, transcriptRaw string, entries []Entry) []Term {
	transcript := strings.ToLower(ner.StripTags(transcriptRaw))
	var out []Term
	for _, e := range entries {
		if m.found(transcript, e.Source) {
			out = append(out, Term{Source: e.Source, Target: e.Targets[0]})
		}
	}
	return out
}

// Match pairs every entry found in the transcript with the first of its
// variants that occurs in the translation. Entries with no such variant are
// logged and dropped.
func (m *Matcher) Match(ctx context.Context, transcriptRaw, translationRaw string, entries []Entry) []Term {
	transcript := strings.ToLower(ner.StripTags(transcriptRaw))
	translation := strings.ToLower(ner.StripTags(translationRaw))
	var out []Term
	for _, e := range entries {
		if !m.found(transcript, e.Source) {
			continue
		}
		paired := false
		for _, t := range e.Targets {
			if strings.Contains(translation, t) {
				out = append(out, Term{Source: e.Source, Target: t})
				paired = true
				break
			}
		}
		if !paired {
			m.metrics.RecordUnresolved(ctx, "term", "")
			observe.Logger(ctx).Debug("glossary: no target variant in translation",
				"source", e.Source, "targets", e.Targets)
		}
	}
	return out
}

// found reports whether term occurs in text as (most of) a word span. The
// first occurrence is widened to the enclosing word characters and must be
// similar enough to term, so "act" is not found inside "exact".
func (m *Matcher) found(text, term string) bool {
	idx := strings.Index(text, term)
	if idx < 0 {
		return false
	}
	start, end := idx, idx+len(term)
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !isWord(r) {
			break
		}
		start -= size
	}
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !isWord(r) {
			break
		}
		end += size
	}
	return fuzzy.WeightedRatio(text[start:end], term) >= m.threshold
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// TrimStopwords strips leading stopwords from both sides of every term.
func TrimStopwords(terms []Term, srcLang, tgtLang string) []Term {
	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = Term{
			Source: ner.TrimStopwords(t.Source, srcLang),
			Target: ner.TrimStopwords(t.Target, tgtLang),
		}
	}
	return out
}
