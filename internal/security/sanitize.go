package security

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength caps relayed message text.
const MaxTextLength = 4000

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)onerror=`),
	regexp.MustCompile(`(?i)onclick=`),
}

// SanitizeText truncates text to MaxTextLength and strips script-injection
// patterns. The database layer is parameterised anyway; this protects the
// downstream consumers of relayed text.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	if len(text) > MaxTextLength {
		// back off to a rune boundary so multi-byte text stays valid
		cut := MaxTextLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	for _, p := range dangerousPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// ValidTelegramID reports whether id can be a real user identity.
func ValidTelegramID(id int64) bool {
	return id > 0
}
