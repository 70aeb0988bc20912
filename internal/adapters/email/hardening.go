package email

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxBodyRunes caps the hardened body length, counted in characters.
const MaxBodyRunes = 10000

var tagPattern = regexp.MustCompile(`<[^>]*>?`)

// Harden applies the ingestion rules to an untrusted body, in order: control
// characters other than newline are removed, tag-like markup is stripped, the
// text is cut to MaxBodyRunes and surrounding whitespace is trimmed. It
// reports false when nothing is left.
//
// Invalid UTF-8 is replaced up front so that characters can be counted. No
// other rewriting happens: combining marks stay as they arrived and each one
// counts as a character. Harden is idempotent.
func Harden(body string) (string, bool) {
	text := stripControl(strings.ToValidUTF8(body, string(utf8.RuneError)))
	text = tagPattern.ReplaceAllString(text, "")
	text = truncateRunes(text, MaxBodyRunes)
	text = strings.TrimSpace(text)
	return text, text != ""
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
