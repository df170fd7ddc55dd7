// Package names canonicalizes offender names and company numbers so that
// spelling variants of one legal entity compare equal.
package names

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type phrase struct {
	from []string
	to   string
}

// phraseSuffixes are multi-token legal forms collapsed to one token. They
// only match whole tokens.
var phraseSuffixes = []phrase{
	{[]string{"public", "limited", "company"}, "plc"},
	{[]string{"limited", "liability", "partnership"}, "llp"},
	{[]string{"community", "interest", "company"}, "cic"},
}

// tokenAliases canonicalizes single tokens.
var tokenAliases = map[string]string{
	"limited":      "ltd",
	"cyfyngedig":   "ltd",
	"cyf":          "ltd",
	"company":      "co",
	"corporation":  "corp",
	"incorporated": "inc",
	"brothers":     "bros",
	"&":            "and",
}

// Normalize trims, strips diacritics, case-folds, removes punctuation,
// collapses whitespace and canonicalizes legal suffixes:
//
//	"  The ACME Scaffolding  Limited." -> "acme scaffolding ltd"
//	"Smith & Sons (Builders) Co."      -> "smith and sons builders co"
func Normalize(name string) string {
	s := stripDiacritics(name)
	// Casers carry state and are not safe to share across goroutines.
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '&' || r == '+':
			b.WriteString(" & ")
		case r == '\'' || r == '’' || r == '.':
			// dropped so "O'Neil" and "Co." join their neighbours
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	tokens := replacePhrases(strings.Fields(b.String()))
	if len(tokens) > 1 && tokens[0] == "the" {
		tokens = tokens[1:]
	}
	for i, t := range tokens {
		if alias, ok := tokenAliases[t]; ok {
			tokens[i] = alias
		}
	}
	return strings.Join(tokens, " ")
}

func replacePhrases(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if p, ok := phraseAt(tokens[i:]); ok {
			out = append(out, p.to)
			i += len(p.from)
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func phraseAt(tokens []string) (phrase, bool) {
	for _, p := range phraseSuffixes {
		if len(tokens) >= len(p.from) && slices.Equal(tokens[:len(p.from)], p.from) {
			return p, true
		}
	}
	return phrase{}, false
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// stopTokens are legal forms and connectors. They are shared by too many
// unrelated names to block on.
var stopTokens = map[string]bool{
	"ltd": true, "plc": true, "llp": true, "cic": true, "co": true, "corp": true,
	"inc": true, "bros": true, "and": true, "the": true, "of": true, "uk": true,
}

// Block is the candidate set of a fuzzy search. A stored name is a candidate
// when it starts with Prefix or contains one of Tokens as a whole token.
type Block struct {
	Prefix string
	Tokens []string
}

// BlockFor returns the block of a normalized name: its first prefixLen runes
// and every distinctive token of three or more runes.
//
//	"smyth construction ltd" -> {Prefix: "smy", Tokens: [smyth construction]}
func BlockFor(normalized string, prefixLen int) Block {
	b := Block{Prefix: Prefix(normalized, prefixLen)}
	for _, t := range strings.Fields(normalized) {
		if utf8.RuneCountInString(t) < 3 || stopTokens[t] || slices.Contains(b.Tokens, t) {
			continue
		}
		b.Tokens = append(b.Tokens, t)
	}
	return b
}

// Contains reports whether a normalized name falls inside the block.
func (b Block) Contains(normalized string) bool {
	if b.Prefix != "" && strings.HasPrefix(normalized, b.Prefix) {
		return true
	}
	for _, t := range strings.Fields(normalized) {
		if slices.Contains(b.Tokens, t) {
			return true
		}
	}
	return false
}

// Prefix returns the first n runes of a normalized name.
func Prefix(normalized string, n int) string {
	r := []rune(normalized)
	if len(r) <= n {
		return normalized
	}
	return string(r[:n])
}

// NormalizeCompanyNumber returns the canonical UK company registration number
// and whether the input is well-formed. Accepted forms are up to eight digits
// (zero-padded to eight) or a two-letter prefix followed by six digits.
func NormalizeCompanyNumber(s string) (string, bool) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if s == "" || len(s) > 8 {
		return "", false
	}
	if allDigits(s) {
		if strings.Trim(s, "0") == "" {
			return "", false
		}
		return strings.Repeat("0", 8-len(s)) + s, true
	}
	if len(s) == 8 && isUpperLetter(s[0]) && isUpperLetter(s[1]) && allDigits(s[2:]) {
		return s, true
	}
	return "", false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func isUpperLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
