package ner

import "strings"

// stopwords are stripped from the start of entity and term text. The list
// is walked once, so each language orders its words the way they stack in
// a phrase: conjunctions, prepositions, predeterminers, articles, then
// possessives, demonstratives and the remaining determiners ("and of all
// the ..."). Only function words are listed; content words such as the
// Spanish "estados" would eat into names written in lower case.
var stopwords = map[string][]string{
	"en": {
		"and", "but", "or", "nor", "if", "because", "as", "until", "while", "so", "than",
		"of", "at", "by", "for", "with", "about", "against", "between", "into", "through",
		"during", "before", "after", "above", "below", "to", "from", "up", "down", "in",
		"out", "on", "off", "over", "under",
		"all", "both",
		"the", "a", "an",
		"this", "that", "these", "those", "my", "our", "your", "his", "her", "its", "their",
		"some", "any", "each", "few", "more", "most", "other", "such", "no", "own", "same",
	},
	"es": {
		"y", "e", "o", "u", "ni", "pero", "sino", "que", "porque", "como", "cuando", "si",
		"a", "al", "ante", "bajo", "con", "contra", "de", "del", "desde", "durante", "en",
		"entre", "hacia", "hasta", "para", "por", "según", "sin", "sobre", "tras",
		"todo", "toda", "todos", "todas",
		"el", "la", "los", "las", "lo", "un", "una", "unos", "unas",
		"este", "esta", "estos", "estas", "ese", "esa", "esos", "esas",
		"mi", "mis", "tu", "tus", "su", "sus", "nuestro", "nuestra", "nuestros", "nuestras",
		"vuestro", "vuestra", "vuestros", "vuestras",
		"otro", "otra", "otros", "otras", "mismo", "misma", "mismos", "mismas",
		"algunos", "algunas", "muchos", "muchas", "pocos", "pocas", "más",
	},
	"fr": {
		"et", "ou", "mais", "ni", "que", "qui",
		"à", "au", "aux", "avec", "dans", "de", "du", "des", "en", "par", "pour", "sur", "sans", "sous", "chez", "entre", "vers",
		"tout", "toute", "tous", "toutes",
		"le", "la", "les", "un", "une",
		"ce", "cet", "cette", "ces", "ma", "mon", "mes", "ta", "ton", "tes", "sa", "son", "ses",
		"notre", "nos", "votre", "vos", "leur", "leurs",
		"même", "mêmes", "autre", "autres", "plusieurs", "quelques",
	},
}

// TrimStopwords removes leading stopwords of lang from text. Each stopword
// is tried once, in list order, and only when followed by a space; matching
// is case-sensitive so capitalised names such as "La Habana" are kept.
func TrimStopwords(text, lang string) string {
	for _, sw := range stopwords[lang] {
		if strings.HasPrefix(text, sw+" ") {
			text = strings.TrimSpace(text[len(sw)+1:])
		}
	}
	return text
}
