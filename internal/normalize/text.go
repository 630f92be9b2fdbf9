package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldReplacer = strings.NewReplacer(
	"\u00a0", " ",
	"\u202f", " ",
	"\u2019", "'",
	"\u2018", "'",
	"œ", "oe",
	"Œ", "OE",
	"æ", "ae",
	"Æ", "AE",
)

var (
	multiSpace = regexp.MustCompile(`\s+`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
)

// legalForms lists French legal-form tokens stripped from either end of a
// normalized name.
var legalForms = map[string]bool{
	"sarl": true, "sarlu": true, "sas": true, "sasu": true, "sa": true,
	"eurl": true, "snc": true, "sci": true, "selarl": true, "selas": true,
	"scop": true, "sca": true, "scs": true, "ei": true, "eirl": true,
	"ets": true, "etablissements": true, "societe": true, "ste": true,
}

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = foldReplacer.Replace(out)
	out = strings.ToLower(out)
	return strings.TrimSpace(multiSpace.ReplaceAllString(out, " "))
}

// NormalizeName standardizes a company name for matching by:
//  1. Folding case and diacritics
//  2. Replacing "&" with "et"
//  3. Replacing punctuation with spaces
//  4. Stripping leading and trailing legal-form tokens (SARL, SAS, ...)
//  5. Collapsing whitespace
func NormalizeName(name string) string {
	n := Fold(name)
	if n == "" {
		return ""
	}
	n = strings.ReplaceAll(n, "&", " et ")
	n = nonAlnum.ReplaceAllString(n, " ")

	tokens := strings.Fields(n)
	for len(tokens) > 1 && legalForms[tokens[0]] {
		tokens = tokens[1:]
	}
	for len(tokens) > 1 && legalForms[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
