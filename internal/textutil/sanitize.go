package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxTitleSegment = 40

// foldDiacritics strips combining marks so "Méliès" becomes "Melies".
func foldDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// SafeSegment reduces value to ASCII letters, digits, '-', and '_', with
// spaces collapsed to '_', truncated to limit runes. Returns "" when nothing
// survives.
func SafeSegment(value string, limit int) string {
	value = foldDiacritics(strings.TrimSpace(value))
	var b strings.Builder
	count := 0
	prevUnderscore := false
	for _, r := range value {
		if limit > 0 && count >= limit {
			break
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || unicode.IsSpace(r):
			if prevUnderscore {
				continue
			}
			b.WriteByte('_')
			prevUnderscore = true
		default:
			continue
		}
		count++
	}
	return strings.Trim(b.String(), "_-")
}

// LocalFileName builds "<identifier>_<title>.<ext>" for a held item. The
// identifier is always preserved so names stay unique within the store.
func LocalFileName(identifier, title, ext string) string {
	id := SafeSegment(identifier, 0)
	if id == "" {
		id = "item"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if seg := SafeSegment(title, maxTitleSegment); seg != "" {
		return id + "_" + seg + strings.ToLower(ext)
	}
	return id + strings.ToLower(ext)
}
