package ner

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"

	"github.com/hlt-mt/smarterp/internal/oracle"
	"github.com/hlt-mt/smarterp/internal/oracle/mock"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []Span
	}{
		{
			name: "two spans in order",
			text: "<PERSON>Ana Botín</PERSON> visitó <GPE>Roma</GPE>",
			want: []Span{{Text: "Ana Botín", Type: "PERSON"}, {Text: "Roma", Type: "GPE"}},
		},
		{
			name: "mismatched labels dropped",
			text: "<PERSON>Roma</GPE> y <CARDINAL>tres</CARDINAL>",
			want: []Span{{Text: "tres", Type: "CARDINAL"}},
		},
		{
			name: "underscore labels",
			text: "the <WORK_OF_ART>Mona Lisa</WORK_OF_ART>",
			want: []Span{{Text: "Mona Lisa", Type: "WORK_OF_ART"}},
		},
		{
			name: "no tags",
			text: "plain text",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.text)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	got := Query("  <GPE>Côte-d'Ivoire</GPE> est loin ")
	want := "Côte d Ivoire est loin"
	if got != want {
		t.Errorf("Query = %q, want %q", got, want)
	}
	if s := StripTags("<A>x</A> <B_C>y</B_C>"); s != "x y" {
		t.Errorf("StripTags = %q, want %q", s, "x y")
	}
}

func TestTrimStopwords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text, lang, want string
	}{
		{"the United Nations", "en", "United Nations"},
		{"of the people", "en", "people"},
		{"de la Torre", "es", "Torre"},
		{"La Habana", "es", "La Habana"},
		{"las", "es", "las"},
		{"les Alpes", "fr", "Alpes"},
		{"the the end", "en", "the end"},
		{"der Rhein", "de", "der Rhein"},
		{"and of the people", "en", "people"},
		{"all the member states", "en", "member states"},
		{"the other side", "en", "side"},
		{"their own budget", "en", "budget"},
		{"todos los países", "es", "países"},
		{"desde la Unión Europea", "es", "Unión Europea"},
		{"estados unidos", "es", "estados unidos"},
		{"y en nuestra ciudad", "es", "ciudad"},
		{"dans la ville", "fr", "ville"},
		{"pour toutes les nations", "fr", "nations"},
		{"il Tevere", "it", "il Tevere"},
	}
	for _, tt := range tests {
		if got := TrimStopwords(tt.text, tt.lang); got != tt.want {
			t.Errorf("TrimStopwords(%q, %q) = %q, want %q", tt.text, tt.lang, got, tt.want)
		}
	}
}

func rec(uri string, tr map[string][]string) oracle.Record {
	return oracle.Record{URI: uri, Translation: tr}
}

func ids(e Entity) []string {
	out := make([]string, 0, len(e.IDs))
	for id := range e.IDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()

	const text = "<PERSON>Mario Draghi</PERSON> habló en <GPE>la Roma</GPE> con <ORG>Nadie</ORG>"
	p := &mock.Provider{Responses: map[string]oracle.Response{
		"Mario Draghi habló en la Roma con Nadie": {
			"Draghi": {rec("http://kb/entity/Q1", map[string][]string{"ENG": {"Draghi"}})},
			"Mario":  {rec("http://kb/entity/Q2", nil)},
			"Roma":   {rec("http://kb/entity/Q220", map[string][]string{"ENG": {"Rome"}, "FRA": {"Rome"}})},
			"Nadie":  {rec("http://kb/entity/Q9", map[string][]string{"FRA": {"Personne"}})},
		},
	}}

	ents, err := NewResolver(p).Resolve(context.Background(), text, "es", "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ents) != 3 {
		t.Fatalf("got %d entities, want 3", len(ents))
	}
	if p.CallCount() != 1 {
		t.Errorf("oracle calls = %d, want 1", p.CallCount())
	}
	if c := p.Calls[0]; c.SrcLang != "es" || c.TgtLang != "en" {
		t.Errorf("lookup langs = %s->%s, want es->en", c.SrcLang, c.TgtLang)
	}

	draghi, roma, nadie := ents[0], ents[1], ents[2]

	if got := ids(draghi); !slices.Equal(got, []string{"Q1", "Q2"}) {
		t.Errorf("Mario Draghi IDs = %v, want [Q1 Q2]", got)
	}
	if draghi.Candidates != nil {
		t.Errorf("Mario Draghi candidates = %v, want absent", draghi.Candidates)
	}
	if got := draghi.CandidatesOrSelf(); !slices.Equal(got, []string{"Mario Draghi"}) {
		t.Errorf("CandidatesOrSelf = %v", got)
	}

	// Reached through the stopword-stripped key.
	if got := roma.Candidates; !slices.Equal(got, []string{"Rome"}) {
		t.Errorf("la Roma candidates = %v, want [Rome]", got)
	}

	// Known but without an English label: empty, not absent.
	if nadie.Candidates == nil || len(nadie.Candidates) != 0 {
		t.Errorf("Nadie candidates = %#v, want empty non-nil", nadie.Candidates)
	}
	if got := nadie.CandidatesOrSelf(); len(got) != 0 {
		t.Errorf("Nadie CandidatesOrSelf = %v, want empty", got)
	}
}

func TestResolve_Exceptions(t *testing.T) {
	t.Parallel()

	const text = "<CARDINAL>trescientos millones</CARDINAL> en <LOC>Africa occidental</LOC>"
	p := &mock.Provider{Responses: map[string]oracle.Response{
		"trescientos millones en Africa occidental": {
			"Africa occidental": {rec("http://kb/Q4412", map[string][]string{"FRA": {"Afrique occidentale"}})},
		},
	}}

	ents, err := NewResolver(p).Resolve(context.Background(), text, "es", "fr")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := ids(ents[0]); !slices.Equal(got, []string{IDHundred, IDMillion}) {
		t.Errorf("magnitude IDs = %v, want [%s %s]", got, IDHundred, IDMillion)
	}
	if got := ents[1].Candidates; !slices.Equal(got, []string{"Afrique de l'ouest"}) {
		t.Errorf("override candidates = %v", got)
	}
	if got := ids(ents[1]); !slices.Equal(got, []string{"Q4412"}) {
		t.Errorf("override IDs = %v, want [Q4412]", got)
	}
}

func TestResolve_NoEntitiesSkipsOracle(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	ents, err := NewResolver(p).Resolve(context.Background(), "nothing tagged here", "en", "es")
	if err != nil || ents != nil {
		t.Fatalf("Resolve = %v, %v; want nil, nil", ents, err)
	}
	if p.CallCount() != 0 {
		t.Errorf("oracle called %d times", p.CallCount())
	}
}

func TestResolveBoth(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: map[string]oracle.Response{
		"Rome is big":    {"Rome": {rec("http://kb/Q220", map[string][]string{"SPA": {"Roma"}})}},
		"Roma es grande": {"Roma": {rec("http://kb/Q220", map[string][]string{"ENG": {"Rome"}})}},
	}}

	src, tgt, err := NewResolver(p).ResolveBoth(context.Background(),
		"<GPE>Rome</GPE> is big", "<GPE>Roma</GPE> es grande", "en", "es")
	if err != nil {
		t.Fatalf("ResolveBoth: %v", err)
	}
	if len(src) != 1 || len(tgt) != 1 {
		t.Fatalf("sizes = %d/%d, want 1/1", len(src), len(tgt))
	}
	if src[0].Overlap(tgt[0]) != 1 {
		t.Errorf("overlap = %d, want 1", src[0].Overlap(tgt[0]))
	}
	if !slices.Equal(tgt[0].Candidates, []string{"Rome"}) {
		t.Errorf("translation-side candidates = %v, want [Rome]", tgt[0].Candidates)
	}

	var sawReverse bool
	for _, c := range p.Calls {
		if c.Query == "Roma es grande" && c.SrcLang == "es" && c.TgtLang == "en" {
			sawReverse = true
		}
	}
	if !sawReverse {
		t.Errorf("translation side not looked up es->en: %+v", p.Calls)
	}
}

func TestResolveBoth_OracleErrorPropagates(t *testing.T) {
	t.Parallel()

	down := &oracle.UnavailableError{Endpoint: "kb", StatusCode: 503, Err: errors.New("busy")}
	p := &mock.Provider{Err: down}

	_, _, err := NewResolver(p).ResolveBoth(context.Background(), "<GPE>Rome</GPE>", "<GPE>Roma</GPE>", "en", "es")
	var ue *oracle.UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *oracle.UnavailableError", err)
	}
}
