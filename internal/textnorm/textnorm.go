// Package textnorm folds locale-variant numerals to ASCII and validates
// the syntax of Iranian mobile numbers and one-time codes. Every caller
// must pass raw user input through here before comparing or persisting it.
package textnorm

import (
	"regexp"
	"strings"
)

// Persian (U+06F0..U+06F9) and Arabic-Indic (U+0660..U+0669) digits map to
// the ASCII digit with the same value.
var digitFold = map[rune]rune{
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
}

var mobilePattern = regexp.MustCompile(`^09\d{9}$`)

// Normalize replaces every Persian and Arabic-Indic digit with its ASCII
// equivalent. Idempotent; all other characters pass through untouched.
func Normalize(text string) string {
	return strings.Map(func(r rune) rune {
		if folded, ok := digitFold[r]; ok {
			return folded
		}
		return r
	}, text)
}

// ValidateMobile normalizes raw input and canonicalizes the four accepted
// surface forms of an Iranian mobile number (09XXXXXXXXX, +989XXXXXXXXX,
// 00989XXXXXXXXX, 9XXXXXXXXX) to the national 09XXXXXXXXX form. The second
// return is false when the input is not a well-formed mobile number.
func ValidateMobile(raw string) (string, bool) {
	normalized := Normalize(raw)

	var b strings.Builder
	for _, r := range normalized {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	candidate := b.String()

	switch {
	case strings.HasPrefix(candidate, "+98"):
		candidate = "0" + strings.TrimPrefix(candidate, "+98")
	case strings.HasPrefix(candidate, "0098"):
		candidate = "0" + strings.TrimPrefix(candidate, "0098")
	case strings.HasPrefix(candidate, "9") && len(candidate) == 10:
		candidate = "0" + candidate
	}

	if !mobilePattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

// ValidateOTP normalizes raw input, strips whitespace, and accepts iff
// exactly six ASCII digits remain.
func ValidateOTP(raw string) (string, bool) {
	normalized := strings.TrimSpace(Normalize(raw))
	normalized = strings.Join(strings.Fields(normalized), "")

	if len(normalized) != 6 {
		return "", false
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return normalized, true
}
