package textutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TitleFromIdentifier derives a readable title from a catalog identifier or
// file name, e.g. "night_of_the_living_dead_1968" -> "Night Of The Living Dead 1968".
func TitleFromIdentifier(value string) string {
	base := filepath.Base(strings.TrimSpace(value))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var cleaned strings.Builder
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" || title == "." {
		return "Untitled"
	}
	return cases.Title(language.Und).String(title)
}

// CleanTitle collapses whitespace in a catalog-supplied title.
func CleanTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
