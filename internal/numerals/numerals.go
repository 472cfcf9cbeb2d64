// Package numerals rewrites spelled-out cardinal numbers as digits in
// English, Spanish and French text.
//
// Only the units, tens, hundreds and thousands classes are recognised:
// "million" and larger multipliers are left as words, so "tres millones"
// stays untouched while "dos mil trescientos" becomes "2300". An isolated
// single word worth less than ten is also kept, since "un", "une" and "one"
// are more often articles or pronouns than quantities.
//
// Decimals are spoken with a language-specific separator word ("point",
// "punto", "virgule") followed by single digits, and rendered with the
// language's decimal symbol: "tres punto cinco" becomes "3,5".
package numerals

import (
	"regexp"
	"strconv"
	"strings"
)

type kind int

const (
	kNone kind = iota
	kZero
	kUnit        // 1-9
	kTeen        // 10-19, plus the Spanish single-word 21-29
	kTen         // 20-90
	kHundredWord // a complete hundred: "doscientos"
	kHundredMul  // multiplies what precedes it: "hundred", "cent"
	kThousand
)

type word struct {
	val  int
	kind kind
}

type language struct {
	words      map[string]word
	connector  string
	connectsTo func(last kind) bool
	decimal    string
	decimalSym string

	// vigesimal enables French "quatre vingt" (80) and the teens after
	// soixante and quatre-vingt.
	vigesimal bool
}

var languages = map[string]*language{
	"en": {
		words:      english,
		connector:  "and",
		connectsTo: func(k kind) bool { return k == kHundredMul || k == kThousand },
		decimal:    "point",
		decimalSym: ".",
	},
	"es": {
		words:      spanish,
		connector:  "y",
		connectsTo: func(k kind) bool { return k == kTen },
		decimal:    "punto",
		decimalSym: ",",
	},
	"fr": {
		words:      french,
		connector:  "et",
		connectsTo: func(k kind) bool { return k == kTen },
		decimal:    "virgule",
		decimalSym: ",",
		vigesimal:  true,
	},
}

// Supported reports whether lang has a number lexicon.
func Supported(lang string) bool {
	_, ok := languages[lang]
	return ok
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{M}]+(?:-[\p{L}\p{M}]+)*`)

type token struct {
	start, end int

	// parts are the lowercase lexemes of a number token, nil otherwise.
	parts []string
}

// Convert returns text with every recognised number rewritten as digits.
// Text in an unsupported language is returned unchanged.
func Convert(text, lang string) string {
	l, ok := languages[lang]
	if !ok {
		return text
	}

	toks := l.tokenize(text)
	var sb strings.Builder
	pos := 0
	for i := 0; i < len(toks); {
		out, next := l.parseGroup(text, toks, i)
		if next == i {
			i++
			continue
		}
		sb.WriteString(text[pos:toks[i].start])
		sb.WriteString(out)
		pos = toks[next-1].end
		i = next
	}
	if pos == 0 {
		return text
	}
	sb.WriteString(text[pos:])
	return sb.String()
}

func (l *language) tokenize(text string) []token {
	locs := wordPattern.FindAllStringIndex(text, -1)
	toks := make([]token, len(locs))
	for i, loc := range locs {
		toks[i] = token{start: loc[0], end: loc[1], parts: l.split(strings.ToLower(text[loc[0]:loc[1]]))}
	}
	return toks
}

// split breaks a possibly hyphenated word into lexicon entries, preferring
// the longest hyphenated entry at each position ("quatre-vingt-dix-sept"
// is quatre-vingt-dix, sept). It returns nil when any piece is unknown.
func (l *language) split(w string) []string {
	if _, ok := l.words[w]; ok || w == l.connector || w == l.decimal {
		return []string{w}
	}
	pieces := strings.Split(w, "-")
	if len(pieces) == 1 {
		return nil
	}
	var out []string
	for i := 0; i < len(pieces); {
		j := len(pieces)
		for ; j > i; j-- {
			cand := strings.Join(pieces[i:j], "-")
			if _, ok := l.words[cand]; ok {
				break
			}
			if j == i+1 && cand == l.connector && i > 0 && i < len(pieces)-1 {
				break
			}
		}
		if j == i {
			return nil
		}
		out = append(out, strings.Join(pieces[i:j], "-"))
		i = j
	}
	return out
}

type builder struct {
	l          *language
	total, cur int
	last       kind
	lastVal    int
	words      int
}

func (b *builder) value() int { return b.total + b.cur }

func (b *builder) push(lex string) bool {
	w, ok := b.l.words[lex]
	if !ok || b.last == kZero {
		return false
	}
	switch w.kind {
	case kZero:
		if b.words > 0 {
			return false
		}
	case kUnit:
		if b.cur%100 != 0 && !(b.last == kTen && b.cur%10 == 0) {
			return false
		}
		b.cur += w.val
	case kTeen:
		rem := b.cur % 100
		if rem != 0 && !(b.l.vigesimal && b.last == kTen && (rem == 60 || rem == 80)) {
			return false
		}
		b.cur += w.val
	case kTen:
		switch {
		case b.l.vigesimal && w.val == 20 && b.last == kUnit && b.lastVal == 4 && b.cur%100 == 4:
			b.cur += 76
		case b.cur%100 != 0:
			return false
		default:
			b.cur += w.val
		}
	case kHundredWord:
		if b.cur != 0 {
			return false
		}
		b.cur = w.val
	case kHundredMul:
		if (b.last != kNone && b.last != kUnit) || b.cur >= 10 {
			return false
		}
		b.cur = max(b.cur, 1) * 100
	case kThousand:
		if b.total != 0 || b.last == kThousand {
			return false
		}
		b.total = max(b.cur, 1) * 1000
		b.cur = 0
	}
	b.last = w.kind
	b.lastVal = w.val
	b.words++
	return true
}

// pushToken applies every lexeme of t, or none of them.
func (b *builder) pushToken(t token) bool {
	nb := *b
	for i, p := range t.parts {
		if p == b.l.connector {
			if i == 0 || i == len(t.parts)-1 || !b.l.connectsTo(nb.last) {
				return false
			}
			continue
		}
		if !nb.push(p) {
			return false
		}
	}
	*b = nb
	return true
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// parseGroup consumes the longest number starting at toks[i]. It returns
// the digits and the index after the last consumed token; next == i means
// nothing was converted.
func (l *language) parseGroup(text string, toks []token, i int) (string, int) {
	adjacent := func(j int) bool {
		return j < len(toks) && toks[j].parts != nil && blank(text[toks[j-1].end:toks[j].start])
	}
	single := func(j int, lex string) bool {
		return len(toks[j].parts) == 1 && toks[j].parts[0] == lex
	}

	b := builder{l: l}
	if toks[i].parts == nil || !b.pushToken(toks[i]) {
		return "", i
	}
	j := i + 1
	for adjacent(j) {
		if single(j, l.connector) {
			if !l.connectsTo(b.last) || !adjacent(j+1) {
				break
			}
			nb := b
			if !nb.pushToken(toks[j+1]) {
				break
			}
			b = nb
			j += 2
			continue
		}
		if !b.pushToken(toks[j]) {
			break
		}
		j++
	}

	var frac strings.Builder
	if adjacent(j) && single(j, l.decimal) {
		k := j + 1
		for adjacent(k) && len(toks[k].parts) == 1 {
			d, ok := l.words[toks[k].parts[0]]
			if !ok || (d.kind != kUnit && d.kind != kZero) {
				break
			}
			frac.WriteString(strconv.Itoa(d.val))
			k++
		}
		if frac.Len() > 0 {
			j = k
		}
	}

	if j == i+1 && frac.Len() == 0 && b.value() < 10 {
		return "", i
	}
	out := strconv.Itoa(b.value())
	if frac.Len() > 0 {
		out += l.decimalSym + frac.String()
	}
	return out, j
}
