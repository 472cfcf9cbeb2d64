package numerals

func withUnits(m map[string]word, names ...string) map[string]word {
	for i, n := range names {
		if n != "" {
			m[n] = word{val: i, kind: kUnit}
		}
	}
	return m
}

var english = withUnits(map[string]word{
	"zero": {0, kZero},

	"ten": {10, kTeen}, "eleven": {11, kTeen}, "twelve": {12, kTeen}, "thirteen": {13, kTeen},
	"fourteen": {14, kTeen}, "fifteen": {15, kTeen}, "sixteen": {16, kTeen},
	"seventeen": {17, kTeen}, "eighteen": {18, kTeen}, "nineteen": {19, kTeen},

	"twenty": {20, kTen}, "thirty": {30, kTen}, "forty": {40, kTen}, "fifty": {50, kTen},
	"sixty": {60, kTen}, "seventy": {70, kTen}, "eighty": {80, kTen}, "ninety": {90, kTen},

	"hundred":   {100, kHundredMul},
	"thousand":  {1000, kThousand},
	"thousands": {1000, kThousand},
}, "", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine")

var spanish = withUnits(map[string]word{
	"cero": {0, kZero},
	"un":   {1, kUnit}, "una": {1, kUnit},

	"diez": {10, kTeen}, "once": {11, kTeen}, "doce": {12, kTeen}, "trece": {13, kTeen},
	"catorce": {14, kTeen}, "quince": {15, kTeen},
	"dieciséis": {16, kTeen}, "dieciseis": {16, kTeen}, "diecisiete": {17, kTeen},
	"dieciocho": {18, kTeen}, "diecinueve": {19, kTeen},
	"veintiuno": {21, kTeen}, "veintiún": {21, kTeen}, "veintiuna": {21, kTeen},
	"veintidós": {22, kTeen}, "veintidos": {22, kTeen},
	"veintitrés": {23, kTeen}, "veintitres": {23, kTeen},
	"veinticuatro": {24, kTeen}, "veinticinco": {25, kTeen},
	"veintiséis": {26, kTeen}, "veintiseis": {26, kTeen},
	"veintisiete": {27, kTeen}, "veintiocho": {28, kTeen}, "veintinueve": {29, kTeen},

	"veinte": {20, kTen}, "treinta": {30, kTen}, "cuarenta": {40, kTen}, "cincuenta": {50, kTen},
	"sesenta": {60, kTen}, "setenta": {70, kTen}, "ochenta": {80, kTen}, "noventa": {90, kTen},

	"cien": {100, kHundredWord}, "ciento": {100, kHundredWord},
	"doscientos": {200, kHundredWord}, "doscientas": {200, kHundredWord},
	"trescientos": {300, kHundredWord}, "trescientas": {300, kHundredWord},
	"cuatrocientos": {400, kHundredWord}, "cuatrocientas": {400, kHundredWord},
	"quinientos": {500, kHundredWord}, "quinientas": {500, kHundredWord},
	"seiscientos": {600, kHundredWord}, "seiscientas": {600, kHundredWord},
	"setecientos": {700, kHundredWord}, "setecientas": {700, kHundredWord},
	"ochocientos": {800, kHundredWord}, "ochocientas": {800, kHundredWord},
	"novecientos": {900, kHundredWord}, "novecientas": {900, kHundredWord},

	"mil":   {1000, kThousand},
	"miles": {1000, kThousand},
}, "", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve")

var french = withUnits(map[string]word{
	"zéro": {0, kZero}, "zero": {0, kZero},
	"une": {1, kUnit},

	"dix": {10, kTeen}, "onze": {11, kTeen}, "douze": {12, kTeen}, "treize": {13, kTeen},
	"quatorze": {14, kTeen}, "quinze": {15, kTeen}, "seize": {16, kTeen},
	"dix-sept": {17, kTeen}, "dix-huit": {18, kTeen}, "dix-neuf": {19, kTeen},

	"vingt": {20, kTen}, "vingts": {20, kTen}, "trente": {30, kTen}, "quarante": {40, kTen},
	"cinquante": {50, kTen}, "soixante": {60, kTen},
	"soixante-dix": {70, kTen},
	"quatre-vingt": {80, kTen}, "quatre-vingts": {80, kTen},
	"quatre-vingt-dix": {90, kTen},

	"cent":   {100, kHundredMul},
	"cents":  {100, kHundredMul},
	"mille":  {1000, kThousand},
	"milles": {1000, kThousand},
}, "", "un", "deux", "trois", "quatre", "cinq", "six", "sept", "huit", "neuf")
