// Package translate turns one audio window into a translation result with
// aligned entities and glossary terms.
//
// A [Processor] submits the window to the worker, resolves the entities tagged
// in the transcript and the translation, aligns them, and matches the
// session glossary. With alignment disabled it forwards the worker's own
// entity and term pairs instead.
package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/glossary"
	"github.com/hlt-mt/smarterp/internal/ner"
	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/store"
	"github.com/hlt-mt/smarterp/internal/window"
	"github.com/hlt-mt/smarterp/internal/worker"
)

// Submitter sends one window to the worker. [*worker.Bridge] implements it.
type Submitter interface {
	Submit(ctx context.Context, slice window.Slice, srcLang, tgtLang, dictionary string) (worker.Result, error)
}

// Resolver resolves both sides of a worker result. [*ner.Resolver]
// implements it.
type Resolver interface {
	ResolveBoth(ctx context.Context, transcript, translation, srcLang, tgtLang string) ([]ner.Entity, []ner.Entity, error)
}

// Request describes one window to process.
type Request struct {
	SessionID string
	Slice     window.Slice
	SrcLang   string
	TgtLang   string

	// Dictionary is the session glossary path. Empty means no glossary.
	Dictionary string
}

// Output is the processed window.
type Output struct {
	Start       float64
	End         float64
	Score       float64
	Transcript  string
	Translation string
	Entities    []align.Pair
	Terms       []glossary.Term
}

// Option is a functional option for [New].
type Option func(*Processor)

// WithAligner replaces the default [align.Aligner].
func WithAligner(a *align.Aligner) Option {
	return func(p *Processor) { p.aligner = a }
}

// WithMatcher replaces the default [glossary.Matcher].
func WithMatcher(m *glossary.Matcher) Option {
	return func(p *Processor) { p.matcher = m }
}

// WithGlossaries sets the glossary cache. Default: a fresh cache.
func WithGlossaries(c *glossary.Cache) Option {
	return func(p *Processor) { p.glossaries = c }
}

// WithRecorder persists every output. Default: [store.Nop].
func WithRecorder(r store.Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithAlignment enables local alignment. When disabled the worker's own
// nes and terms are forwarded. Default: enabled.
func WithAlignment(on bool) Option {
	return func(p *Processor) { p.alignment = on }
}

// WithTranscriptOnlyTerms selects [glossary.Matcher.MatchTranscriptOnly]
// instead of the bilingual match. Default: true.
func WithTranscriptOnlyTerms(on bool) Option {
	return func(p *Processor) { p.transcriptOnly = on }
}

// Processor is safe for concurrent use when its collaborators are.
type Processor struct {
	submitter      Submitter
	resolver       Resolver
	aligner        *align.Aligner
	matcher        *glossary.Matcher
	glossaries     *glossary.Cache
	recorder       store.Recorder
	alignment      bool
	transcriptOnly bool
}

// New returns a Processor that submits through s and resolves through r.
func New(s Submitter, r Resolver, opts ...Option) *Processor {
	p := &Processor{
		submitter:      s,
		resolver:       r,
		alignment:      true,
		transcriptOnly: true,
	}
	for _, o := range opts {
		o(p)
	}
	if p.aligner == nil {
		p.aligner = align.New()
	}
	if p.matcher == nil {
		p.matcher = glossary.NewMatcher()
	}
	if p.glossaries == nil {
		p.glossaries = glossary.NewCache()
	}
	if p.recorder == nil {
		p.recorder = store.Nop{}
	}
	return p
}

// Glossaries returns the glossary cache, so sessions can release their
// snapshot on teardown.
func (p *Processor) Glossaries() *glossary.Cache { return p.glossaries }

// Process runs one window through the worker and the alignment pipeline.
//
// Worker errors are returned unchanged so callers can tell
// [worker.ErrWorkerUnavailable] from [*worker.ProtocolError]. An oracle
// failure aborts alignment for this window and is returned as well.
func (p *Processor) Process(ctx context.Context, req Request) (Output, error) {
	ctx, span := observe.StartSpan(ctx, "translate.process")
	defer span.End()

	res, err := p.submitter.Submit(ctx, req.Slice, req.SrcLang, req.TgtLang, req.Dictionary)
	if err != nil {
		return Output{}, err
	}

	out := Output{
		Start:       req.Slice.Start,
		End:         req.Slice.End,
		Score:       res.Score,
		Transcript:  res.Transcript,
		Translation: res.Translation,
	}

	if p.alignment {
		if err := p.alignResult(ctx, req, res, &out); err != nil {
			return Output{}, err
		}
	} else {
		out.Entities = workerEntities(res.Entities)
		out.Terms = workerTerms(res.Terms)
	}

	if err := p.recorder.Record(ctx, store.Result{
		SessionID:   req.SessionID,
		Start:       out.Start,
		End:         out.End,
		SrcLang:     req.SrcLang,
		TgtLang:     req.TgtLang,
		Score:       out.Score,
		Transcript:  out.Transcript,
		Translation: out.Translation,
		Entities:    out.Entities,
		Terms:       out.Terms,
		CreatedAt:   time.Now(),
	}); err != nil {
		observe.Logger(ctx).Warn("translate: failed to record result", "err", err, "end", out.End)
	}

	observe.Logger(ctx).Debug("translate: window processed",
		"start", out.Start, "end", out.End, "entities", len(out.Entities), "terms", len(out.Terms))
	return out, nil
}

func (p *Processor) alignResult(ctx context.Context, req Request, res worker.Result, out *Output) error {
	src, tgt, err := p.resolver.ResolveBoth(ctx, res.Transcript, res.Translation, req.SrcLang, req.TgtLang)
	if err != nil {
		return fmt.Errorf("translate: resolve entities: %w", err)
	}
	pairs := p.aligner.Align(ctx, src, tgt, res.Transcript)
	out.Entities = p.aligner.Postprocess(pairs, req.SrcLang, req.TgtLang)

	if req.Dictionary == "" {
		return nil
	}
	entries, err := p.glossaries.Get(req.Dictionary)
	if err != nil {
		return fmt.Errorf("translate: load glossary: %w", err)
	}
	var terms []glossary.Term
	if p.transcriptOnly {
		terms = p.matcher.MatchTranscriptOnly(ctx, res.Transcript, entries)
	} else {
		terms = p.matcher.Match(ctx, res.Transcript, res.Translation, entries)
	}
	out.Terms = glossary.TrimStopwords(terms, req.SrcLang, req.TgtLang)
	return nil
}

func workerEntities(in []worker.Entity) []align.Pair {
	out := make([]align.Pair, len(in))
	for i, e := range in {
		out[i] = align.Pair{Source: e.Src, Target: e.Tgt, Type: e.Type}
	}
	return out
}

func workerTerms(in []worker.Term) []glossary.Term {
	out := make([]glossary.Term, len(in))
	for i, t := range in {
		out[i] = glossary.Term{Source: t.Src, Target: t.Tgt}
	}
	return out
}
