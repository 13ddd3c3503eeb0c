// Package street generates spelling variants of Norwegian street names.
//
// Municipalities are inconsistent about official and colloquial spellings
// ("Lørenveien" / "Lørenvegen", "Snorres veg" / "Snorresveg"), so the resolver
// retries a failed street lookup with the variants in priority order and
// stops at the first hit.
package street

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultMaxVariants bounds the number of variants produced for one name,
// including the original.
const DefaultMaxVariants = 48

// Normalizer produces variants from a Table. It holds no mutable state.
type Normalizer struct {
	table *Table
	max   int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMaxVariants caps the length of every variant sequence.
func WithMaxVariants(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.max = n
		}
	}
}

// New creates a Normalizer over t.
func New(t *Table, opts ...Option) *Normalizer {
	nz := &Normalizer{table: t, max: DefaultMaxVariants}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

// Default creates a Normalizer over the embedded table.
func Default(opts ...Option) (*Normalizer, error) {
	t, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// Load creates a Normalizer over the table in path, or over the embedded
// table when path is empty.
func Load(path string, opts ...Option) (*Normalizer, error) {
	if path == "" {
		return Default(opts...)
	}
	t, err := LoadTable(path)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// Variants returns the spelling variants of name, most likely first. The
// sequence starts with name itself, contains no duplicates (ignoring case),
// is computed lazily and yields the same values every time it is ranged over.
func (n *Normalizer) Variants(name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		e := &emitter{yield: yield, seen: make(map[string]bool), max: n.max}

		original := collapse(name)
		if original == "" || !e.emit(original) {
			return
		}

		bases := []string{strings.ToLower(original)}
		if to, ok := n.table.Renames[bases[0]]; ok {
			if !e.emit(to) {
				return
			}
			bases = append(bases, strings.ToLower(collapse(to)))
		}

		for _, base := range bases {
			if !suffixVariants(base, n.table.Suffixes, true, e) ||
				!suffixVariants(base, n.table.Patronyms, false, e) ||
				!wordVariants(base, n.table.Words, e) ||
				!hyphenVariants(base, e) {
				return
			}
		}
	}
}

// List collects the variants of name into a slice.
func (n *Normalizer) List(name string) []string {
	return slices.Collect(n.Variants(name))
}

type emitter struct {
	yield func(string) bool
	seen  map[string]bool
	count int
	max   int
}

// emit yields v unless it was seen before. It returns false once the
// consumer stops or the variant cap is reached.
func (e *emitter) emit(v string) bool {
	v = collapse(v)
	if v == "" {
		return true
	}
	key := strings.ToLower(v)
	if e.seen[key] {
		return true
	}
	if e.count >= e.max {
		return false
	}
	e.seen[key] = true
	e.count++
	return e.yield(v)
}

// suffixVariants swaps the ending of the last word that ends in one of a
// group's forms. All plain swaps come first, then the spacing and genitive
// variants of every form.
func suffixVariants(base string, groups [][]string, genitive bool, e *emitter) bool {
	tokens := strings.Fields(base)
	for _, forms := range groups {
		ti, matched, ok := lastSuffix(tokens, forms)
		if !ok {
			continue
		}

		tok := tokens[ti]
		stem := tok[:len(tok)-len(matched)]
		before := strings.Join(tokens[:ti], " ")
		rest := strings.Join(tokens[ti+1:], " ")

		var head string
		switch {
		case before == "":
			head = stem
		case stem == "":
			head = before + " "
		default:
			head = before + " " + stem
		}

		for _, r := range forms {
			if isAbbrev(r) || r == matched {
				continue
			}
			if !e.emit(joinRest(head+r, rest)) {
				return false
			}
		}

		if !genitive {
			continue
		}
		for _, r := range forms {
			if isAbbrev(r) {
				continue
			}
			for _, h := range spacings(head) {
				if !e.emit(joinRest(h+r, rest)) {
					return false
				}
			}
		}
	}
	return true
}

// wordVariants replaces the last whole word found in a group with the
// group's other forms.
func wordVariants(base string, groups [][]string, e *emitter) bool {
	tokens := strings.Fields(base)
	for _, forms := range groups {
		for i := len(tokens) - 1; i >= 0; i-- {
			if !wordMatch(tokens[i], forms) {
				continue
			}
			for _, r := range forms {
				if isAbbrev(r) || r == tokens[i] {
					continue
				}
				swapped := slices.Clone(tokens)
				swapped[i] = r
				if !e.emit(strings.Join(swapped, " ")) {
					return false
				}
			}
			break
		}
	}
	return true
}

func hyphenVariants(base string, e *emitter) bool {
	if !strings.Contains(base, "-") {
		return true
	}
	return e.emit(strings.ReplaceAll(base, "-", " ")) && e.emit(strings.ReplaceAll(base, "-", ""))
}

// spacings returns the word-boundary alternatives for the text in front of
// a street suffix: joined, separate, with and without genitive "s".
// "Snorres " gives "snorres", "snorres ", "snorre", "snorre ".
func spacings(head string) []string {
	h := strings.TrimRight(head, " ")
	if h == "" {
		return nil
	}
	out := []string{h, h + " "}
	if strings.HasSuffix(h, "s") {
		if trimmed := h[:len(h)-1]; trimmed != "" && !strings.HasSuffix(trimmed, " ") {
			out = append(out, trimmed, trimmed+" ")
		}
	} else {
		out = append(out, h+"s", h+"s ")
	}
	return out
}

// lastSuffix finds the last token ending in one of forms. Abbreviations
// match with or without their period; without it a one-letter abbreviation
// only matches a whole word.
func lastSuffix(tokens, forms []string) (int, string, bool) {
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		for _, f := range forms {
			if strings.HasSuffix(tok, f) {
				return i, f, true
			}
			if !isAbbrev(f) {
				continue
			}
			bare := strings.TrimSuffix(f, ".")
			if tok == bare || (utf8.RuneCountInString(bare) > 1 && strings.HasSuffix(tok, bare)) {
				return i, bare, true
			}
		}
	}
	return 0, "", false
}

func wordMatch(tok string, forms []string) bool {
	for _, f := range forms {
		if tok == f || (isAbbrev(f) && tok == strings.TrimSuffix(f, ".")) {
			return true
		}
	}
	return false
}

func isAbbrev(form string) bool {
	return strings.HasSuffix(form, ".")
}

func joinRest(s, rest string) string {
	if rest == "" {
		return s
	}
	return s + " " + rest
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
