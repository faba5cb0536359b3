package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DownloadMarker is the boilerplate phrase the source injects before the
// download block of a post.
const DownloadMarker = "دانلود در ادامه مطلب"

var digitMapper = runes.Map(func(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	default:
		return r
	}
})

// Digits transliterates Persian and Arabic-Indic numerals to ASCII digits.
func Digits(s string) string {
	out, _, err := transform.String(digitMapper, s)
	if err != nil {
		return s
	}
	return out
}

// IsLatinLetter reports whether r is in the ASCII Latin allow-list.
func IsLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// LatinOnly drops every character outside the Latin alphabet and the space.
func LatinOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if IsLatinLetter(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsLatinLead reports whether the first non-space rune of s is a Latin letter.
func IsLatinLead(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return IsLatinLetter(r)
}

// StripBOM removes byte order marks and zero-width characters pasted into titles.
func StripBOM(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\ufeff', '\u200b', '\u200e', '\u200f':
			return -1
		default:
			return r
		}
	}, s)
}

// StripDownloadMarker drops the "continue reading for download" phrase and
// the teaser text the source places before it.
func StripDownloadMarker(s string) string {
	if i := strings.Index(s, DownloadMarker); i >= 0 {
		s = s[i+len(DownloadMarker):]
	}
	return strings.TrimSpace(s)
}

// StripQuotes removes straight and typographic double quotes.
func StripQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '“', '”', '«', '»':
			return -1
		default:
			return r
		}
	}, s)
}

// CollapseSpace trims s and folds internal whitespace runs into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// CleanLocalizedName strips every artist alias out of a localized title.
// When no alias occurs in title the result is empty, since the remaining
// string would be the untouched title rather than a song name.
func CleanLocalizedName(title string, aliases []string) string {
	cleaned := title
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		cleaned = strings.ReplaceAll(cleaned, alias, "")
	}
	if len(cleaned) == len(title) {
		return ""
	}
	cleaned = strings.Trim(CollapseSpace(cleaned), " -–:|")
	return strings.TrimSpace(cleaned)
}
