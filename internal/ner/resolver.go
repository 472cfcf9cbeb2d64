package ner

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/oracle"
)

// Synthetic identifiers for magnitude words. The oracle does not link them,
// yet they must pair across languages ("cientos" with "hundreds").
const (
	IDHundred = "FN100"
	IDMillion = "FN1000000"
)

var (
	hundredWords = []string{"cientos", "centaines"}
	millionWords = []string{"millones", "millions"}

	// overrides replace the oracle's candidates for phrases it is known to
	// mistranslate.
	overrides = map[string][]string{
		"Africa occidental": {"Afrique de l'ouest"},
		"cuarenta y cinco":  {"quarante cinq"},
	}
)

// Oracle is the lookup capability a [Resolver] needs.
type Oracle interface {
	Lookup(ctx context.Context, query, srcLang, tgtLang string) (oracle.Response, error)
}

// Entity is a tagged span enriched with oracle data.
type Entity struct {
	Text string
	Type string

	// IDs is the identifier set. Never nil.
	IDs map[string]struct{}

	// Candidates are translations of Text into the other language. Nil means
	// the oracle had nothing for this entity; an empty non-nil slice means it
	// knew the entity but not its translation.
	Candidates []string
}

// Overlap returns the number of identifiers e shares with o.
func (e Entity) Overlap(o Entity) int {
	small, large := e.IDs, o.IDs
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for id := range small {
		if _, ok := large[id]; ok {
			n++
		}
	}
	return n
}

// CandidatesOrSelf returns Candidates, or the entity's own text when they
// are absent.
func (e Entity) CandidatesOrSelf() []string {
	if e.Candidates == nil {
		return []string{e.Text}
	}
	return e.Candidates
}

// Resolver attaches oracle identifiers and candidates to extracted entities.
// It is safe for concurrent use if its Oracle is.
type Resolver struct {
	oracle Oracle
}

// NewResolver returns a Resolver backed by o.
func NewResolver(o Oracle) *Resolver {
	return &Resolver{oracle: o}
}

// Resolve extracts the entities tagged in text and resolves them with one
// oracle lookup from srcLang to tgtLang. Text without entities is not sent
// to the oracle.
func (r *Resolver) Resolve(ctx context.Context, text, srcLang, tgtLang string) ([]Entity, error) {
	spans := Extract(text)
	if len(spans) == 0 {
		return nil, nil
	}

	resp, err := r.oracle.Lookup(ctx, Query(text), srcLang, tgtLang)
	if err != nil {
		return nil, fmt.Errorf("ner: resolve %s text: %w", srcLang, err)
	}
	code, _ := oracle.LangCode(tgtLang)

	out := make([]Entity, 0, len(spans))
	for _, sp := range spans {
		e := Entity{Text: sp.Text, Type: sp.Type, IDs: make(map[string]struct{})}

		for surface, recs := range resp {
			if !strings.Contains(sp.Text, surface) {
				continue
			}
			for _, rec := range recs {
				e.IDs[rec.ID()] = struct{}{}
			}
		}
		if containsAny(sp.Text, hundredWords) {
			e.IDs[IDHundred] = struct{}{}
		}
		if containsAny(sp.Text, millionWords) {
			e.IDs[IDMillion] = struct{}{}
		}

		e.Candidates = candidates(sp.Text, srcLang, code, resp)
		out = append(out, e)
	}
	observe.Logger(ctx).Debug("ner: resolved entities", "lang", srcLang, "entities", len(out), "surfaces", len(resp))
	return out, nil
}

// ResolveBoth resolves the transcript (srcLang to tgtLang) and the
// translation (tgtLang to srcLang) concurrently. Either lookup failing
// fails the call.
func (r *Resolver) ResolveBoth(ctx context.Context, transcript, translation, srcLang, tgtLang string) (src, tgt []Entity, err error) {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		src, err = r.Resolve(egCtx, transcript, srcLang, tgtLang)
		return err
	})
	eg.Go(func() error {
		var err error
		tgt, err = r.Resolve(egCtx, translation, tgtLang, srcLang)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return src, tgt, nil
}

func candidates(text, srcLang, code string, resp oracle.Response) []string {
	if o, ok := overrides[text]; ok {
		return append([]string(nil), o...)
	}
	if recs, ok := resp[text]; ok {
		return flatten(recs, code)
	}
	if recs, ok := resp[TrimStopwords(text, srcLang)]; ok {
		return flatten(recs, code)
	}
	return nil
}

// flatten concatenates the code translations of recs. The result is
// non-nil even when no record carries code.
func flatten(recs []oracle.Record, code string) []string {
	out := []string{}
	for _, rec := range recs {
		out = append(out, rec.Translation[code]...)
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
