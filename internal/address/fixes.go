package address

import "strings"

// nameFixes rewrites words that the registers spell differently.
// Keys are lower case; an empty value drops the word.
var nameFixes = map[string]string{
	"rådhuset":        "Rådhus",
	"kommunehuset":    "Kommunehus",
	"herredshuset":    "Herredshus",
	"heradshuset":     "Heradshus",
	"st.":             "stasjon",
	"togstasjon":      "stasjon",
	"jernbanestasjon": "stasjon",
	"sk.":             "skole",
	"vgs.":            "videregående skole",
	"v.g.s.":          "videregående skole",
	"b&u":             "barne og ungdom",
	"c/o":             "",
}

// FixNames applies the word fixes to s, matching whole words case-insensitively.
func FixNames(s string) string {
	if s == "" {
		return s
	}
	words := strings.Fields(s)
	out := words[:0]
	for _, w := range words {
		fixed, ok := nameFixes[strings.ToLower(w)]
		if !ok {
			out = append(out, w)
			continue
		}
		if fixed != "" {
			out = append(out, fixed)
		}
	}
	return strings.Join(out, " ")
}
