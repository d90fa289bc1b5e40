// Package normalize cleans free-form provider narration into short merchant
// names and token lists for the categorizer.
package normalize

import (
	"strings"
	"unicode"
)

// MaxMerchantLen caps the normalized merchant, in runes.
const MaxMerchantLen = 40

// Unknown is returned when nothing meaningful survives normalization.
const Unknown = "Unknown"

// boilerplate phrases providers prepend to narration. Longer phrases first so
// "payment received from" is stripped before "payment".
var boilerplate = []string{
	"payment received from",
	"payment sent to",
	"payment to",
	"payment from",
	"payment for",
	"transfer to",
	"transfer from",
	"funds transfer",
	"received from",
	"sent to",
	"pos purchase at",
	"pos purchase",
	"pos payment",
	"card payment",
	"card purchase",
	"purchase at",
	"purchase from",
	"debit card",
	"mobile money",
	"momo",
	"cash out",
	"cash in",
	"direct debit",
	"standing order",
	"trf",
	"trx",
	"txn",
	"ref",
	"via",
}

var leadingStopwords = map[string]bool{
	"at": true, "to": true, "from": true, "for": true, "by": true,
}

var replacer = strings.NewReplacer(
	"*", " ", "#", " ", "/", " ", "\\", " ", "_", " ", "|", " ",
	",", " ", ";", " ", ":", " ", "(", " ", ")", " ", "[", " ", "]", " ",
)

// Merchant joins the non-empty parts and reduces them to a display name.
// It never fails; an empty result becomes "Unknown".
func Merchant(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return Unknown
	}

	s := " " + strings.ToLower(replacer.Replace(strings.Join(kept, " "))) + " "
	for _, phrase := range boilerplate {
		s = strings.ReplaceAll(s, " "+phrase+" ", " ")
	}

	var words []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".-'\"")
		if w == "" || isReference(w) {
			continue
		}
		words = append(words, titleWord(w))
	}
	for len(words) > 0 && leadingStopwords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	if len(words) == 0 {
		return Unknown
	}
	return capWords(words, MaxMerchantLen)
}

// Tokens returns lower-case word tokens, punctuation stripped.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&' && r != '\''
	})
}

// isReference reports tokens that look like ids rather than names:
// digit runs and long mixed alphanumerics.
func isReference(w string) bool {
	var letters, digits int
	for _, r := range w {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if digits == 0 {
		return false
	}
	if letters == 0 {
		return true
	}
	return len(w) > 6
}

func titleWord(w string) string {
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func capWords(words []string, limit int) string {
	out := words[0]
	if len([]rune(out)) > limit {
		return string([]rune(out)[:limit])
	}
	for _, w := range words[1:] {
		next := out + " " + w
		if len([]rune(next)) > limit {
			break
		}
		out = next
	}
	return out
}
