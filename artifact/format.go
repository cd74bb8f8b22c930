package artifact

import (
	"strings"
	"unicode"
)

// Placeholders drawn when a record field is empty.
const (
	PlaceholderName     = "Unknown Name"
	PlaceholderNo       = "NO-ID"
	PlaceholderHospital = "Unknown Hospital"
	PlaceholderDOI      = "01-01-2025"
)

// TitleCase lower-cases s and upper-cases the first letter of every
// whitespace-separated word. Whitespace is kept as is.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	atStart := true
	for _, r := range strings.ToLower(s) {
		if atStart && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			r = unicode.ToUpper(r)
		}
		atStart = unicode.IsSpace(r)
		b.WriteRune(r)
	}
	return b.String()
}

const unsafeFilenameChars = `\/:*?"<>|`

// FilenamePart strips characters that are not allowed in file names and
// title-cases the rest, falling back to "Unknown".
func FilenamePart(s string) string {
	clean := strings.TrimSpace(strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeFilenameChars, r) {
			return -1
		}
		return r
	}, s))
	if clean == "" {
		return "Unknown"
	}
	return TitleCase(clean)
}

// Filename is the download name for a certificate.
func Filename(name, hospital string) string {
	return FilenamePart(name) + "_" + FilenamePart(hospital) + ".pdf"
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
