// Package align pairs the named entities of a transcript with those of its
// translation.
//
// Each translation-side entity is matched against a pool of transcript-side
// entities in extraction order. A first pass tries, in turn:
//
//  1. identifier overlap: the pool entity sharing the most knowledge-base
//     identifiers (first found wins on ties);
//  2. candidate text: a pool entity whose text equals one of the entity's
//     translation candidates, ignoring case;
//  3. raw span: a token-aligned occurrence of a candidate in the untagged
//     transcript.
//
// Matches from stages 1 and 2 are removed from the pool. Entities left over
// go to a second pass that pairs by type: a lone same-type pool entity is
// taken unconditionally, PERSON and CARDINAL entities are matched fuzzily,
// and anything else is dropped.
package align

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hlt-mt/smarterp/internal/fuzzy"
	"github.com/hlt-mt/smarterp/internal/ner"
	"github.com/hlt-mt/smarterp/internal/numerals"
	"github.com/hlt-mt/smarterp/internal/observe"
)

const defaultFuzzyFloor = 0.6

// Entity types with a dedicated second-pass rule.
const (
	TypePerson   = "PERSON"
	TypeCardinal = "CARDINAL"
)

// Stage labels reported on the aligned-pairs metric.
const (
	StageIdentifiers = "identifiers"
	StageCandidate   = "candidate"
	StageRawSpan     = "raw_span"
	StageSameType    = "same_type"
	StageFuzzy       = "fuzzy"
)

// Pair is one aligned entity. Source is the transcript side.
type Pair struct {
	Source string `json:"src"`
	Target string `json:"tgt"`
	Type   string `json:"type"`
}

// Option is a functional option for [New].
type Option func(*Aligner)

// WithFuzzyFloor sets the minimum token-sort similarity for second-pass
// fuzzy matches. Default: 0.6.
func WithFuzzyFloor(f float64) Option {
	return func(a *Aligner) { a.fuzzyFloor = f }
}

// WithNumerals enables or disables digit conversion in [Aligner.Postprocess].
// Default: enabled.
func WithNumerals(on bool) Option {
	return func(a *Aligner) { a.numerals = on }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Aligner) { a.metrics = m }
}

// Aligner is read-only after construction and safe for concurrent use.
type Aligner struct {
	fuzzyFloor float64
	numerals   bool
	metrics    *observe.Metrics
}

// New returns an Aligner configured by opts.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		fuzzyFloor: defaultFuzzyFloor,
		numerals:   true,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Align pairs translation-side entities with transcript-side ones.
// transcriptRaw is the tagged transcript; tags are stripped before span
// matching. The inputs are not modified, so repeated calls yield the same
// pairs in the same order.
func (a *Aligner) Align(ctx context.Context, transcript, translation []ner.Entity, transcriptRaw string) []Pair {
	start := time.Now()
	defer func() { a.metrics.AlignDuration.Record(ctx, time.Since(start).Seconds()) }()

	pool := slices.Clone(transcript)
	raw := ner.StripTags(transcriptRaw)

	var (
		pairs    []Pair
		deferred []ner.Entity
	)
	for _, e := range translation {
		p, stage, ok := firstPass(e, &pool, raw)
		if !ok {
			deferred = append(deferred, e)
			continue
		}
		a.metrics.RecordAlignedPair(ctx, stage)
		pairs = append(pairs, p)
	}

	for _, e := range deferred {
		p, ok := a.secondPass(ctx, e, &pool, raw)
		if !ok {
			a.metrics.RecordUnresolved(ctx, "entity", e.Type)
			observe.Logger(ctx).Debug("align: unresolved entity",
				"text", e.Text, "type", e.Type, "ids", len(e.IDs), "pool", len(pool))
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func firstPass(e ner.Entity, pool *[]ner.Entity, raw string) (Pair, string, bool) {
	if i := byIdentifiers(e, *pool); i >= 0 {
		return consume(e, pool, i), StageIdentifiers, true
	}

	cands := e.CandidatesOrSelf()
	if i := byCandidate(cands, *pool); i >= 0 {
		return consume(e, pool, i), StageCandidate, true
	}

	for _, c := range cands {
		if span, ok := exactSpan(c, raw); ok {
			return Pair{Source: span, Target: e.Text, Type: e.Type}, StageRawSpan, true
		}
	}
	return Pair{}, "", false
}

func (a *Aligner) secondPass(ctx context.Context, e ner.Entity, pool *[]ner.Entity, raw string) (Pair, bool) {
	var same []int
	for i, s := range *pool {
		if s.Type == e.Type {
			same = append(same, i)
		}
	}

	switch {
	case len(same) == 1:
		a.metrics.RecordAlignedPair(ctx, StageSameType)
		return consume(e, pool, same[0]), true

	case e.Type == TypePerson && len(e.IDs) > 0:
		windows := fuzzy.Windows(raw, len(strings.Fields(e.Text)))
		k, _, ok := fuzzy.ExtractOne(e.Text, windows, a.fuzzyFloor)
		if !ok {
			return Pair{}, false
		}
		a.metrics.RecordAlignedPair(ctx, StageFuzzy)
		return Pair{Source: windows[k], Target: e.Text, Type: e.Type}, true

	case e.Type == TypeCardinal:
		texts := make([]string, len(same))
		for k, i := range same {
			texts[k] = (*pool)[i].Text
		}
		k, _, ok := fuzzy.ExtractOne(e.Text, texts, a.fuzzyFloor)
		if !ok {
			return Pair{}, false
		}
		a.metrics.RecordAlignedPair(ctx, StageFuzzy)
		return consume(e, pool, same[k]), true
	}
	return Pair{}, false
}

// byIdentifiers returns the pool index with the largest strictly positive
// identifier overlap with e, or -1. The first of equal maxima wins.
func byIdentifiers(e ner.Entity, pool []ner.Entity) int {
	best, most := -1, 0
	for i, s := range pool {
		if n := e.Overlap(s); n > most {
			best, most = i, n
		}
	}
	return best
}

// byCandidate returns the last pool index whose text equals one of cands,
// ignoring case, or -1.
func byCandidate(cands []string, pool []ner.Entity) int {
	found := -1
	for i, s := range pool {
		if slices.ContainsFunc(cands, func(c string) bool { return strings.EqualFold(c, s.Text) }) {
			found = i
		}
	}
	return found
}

// consume removes pool[i] and pairs it with e.
func consume(e ner.Entity, pool *[]ner.Entity, i int) Pair {
	s := (*pool)[i]
	*pool = slices.Delete(*pool, i, i+1)
	return Pair{Source: s.Text, Target: e.Text, Type: e.Type}
}

var dashes = strings.NewReplacer("—", "", "–", "")

// exactSpan finds the first run of tokens in raw equal to sub, ignoring
// case. Failing that it retries with punctuation and a leading l' or d'
// elision removed from both sides. It returns the span as written in raw.
func exactSpan(sub, raw string) (string, bool) {
	windows := fuzzy.Windows(raw, len(strings.Fields(sub)))
	for _, w := range windows {
		if strings.EqualFold(w, sub) {
			return w, true
		}
	}
	want := bare(sub)
	if want == "" {
		return "", false
	}
	for _, w := range windows {
		if bare(w) == want {
			return w, true
		}
	}
	return "", false
}

func bare(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range []string{"l'", "d'", "l’", "d’"} {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	s = dashes.Replace(s)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
}

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~’“”«»¿¡"

// Postprocess normalises numerals (when enabled) and trims leading
// stopwords on both sides of every pair. pairs is not modified.
func (a *Aligner) Postprocess(pairs []Pair, srcLang, tgtLang string) []Pair {
	out := make([]Pair, len(pairs))
	for i, p := range pairs {
		if a.numerals {
			p.Source = numerals.Convert(p.Source, srcLang)
			p.Target = numerals.Convert(p.Target, tgtLang)
		}
		p.Source = ner.TrimStopwords(p.Source, srcLang)
		p.Target = ner.TrimStopwords(p.Target, tgtLang)
		out[i] = p
	}
	return out
}
