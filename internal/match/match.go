// Package match finds keywords in comment text as whole, case-insensitive words.
package match

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// fold applies Unicode full case folding. A Caser is stateful, so each call
// gets its own.
func fold(s string) string { return cases.Fold().String(s) }

// Key is the identity of a keyword: two keywords with the same Key match
// exactly the same text.
func Key(kw string) string { return fold(Normalize(kw)) }

// First returns the first keyword, in slice order, that occurs in text as a
// whole word. Comparison uses Unicode case folding; a word boundary is any
// rune that is not a letter, digit, mark or underscore (or the text edge).
func First(text string, keywords []string) (string, bool) {
	return New(keywords).First(text)
}

// Matcher caches folded keywords for repeated matching within one cycle.
type Matcher struct {
	keywords []string
	folded   []string
}

func New(keywords []string) *Matcher {
	m := &Matcher{}
	for _, kw := range keywords {
		f := fold(strings.TrimSpace(kw))
		if f == "" {
			continue
		}
		m.keywords = append(m.keywords, kw)
		m.folded = append(m.folded, f)
	}
	return m
}

// Len is the number of usable keywords.
func (m *Matcher) Len() int { return len(m.keywords) }

// First behaves like the package-level First over the cached keywords.
func (m *Matcher) First(text string) (string, bool) {
	if text == "" || len(m.folded) == 0 {
		return "", false
	}
	hay := fold(text)
	for i, needle := range m.folded {
		if containsWord(hay, needle) {
			return m.keywords[i], true
		}
	}
	return "", false
}

func containsWord(hay, needle string) bool {
	// A keyword that itself starts or ends with a separator is bounded by it.
	needLeft := isWordRune(firstRune(needle))
	needRight := isWordRune(lastRune(needle))

	for off := 0; off <= len(hay)-len(needle); {
		i := strings.Index(hay[off:], needle)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(needle)

		leftOK := !needLeft || start == 0 || !isWordRune(lastRune(hay[:start]))
		rightOK := !needRight || end == len(hay) || !isWordRune(firstRune(hay[end:]))
		if leftOK && rightOK {
			return true
		}
		_, size := utf8.DecodeRuneInString(hay[start:])
		off = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// Normalize trims a keyword and collapses inner whitespace runs to one space.
func Normalize(kw string) string {
	return strings.Join(strings.Fields(kw), " ")
}

// SplitList parses a comma separated keyword list, dropping blanks and
// case-insensitive duplicates while keeping first-seen order.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		kw := Normalize(p)
		if kw == "" {
			continue
		}
		key := Key(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}
