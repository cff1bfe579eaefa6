package security

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText_StripsScripts(t *testing.T) {
	assert.Equal(t, "", SanitizeText("<script>alert(1)</script>"))
	assert.Equal(t, "привет", SanitizeText("привет<script src=\"x\">steal()</script>"))
	assert.Equal(t, "ссылка:", SanitizeText("ссылка: javascript:void(0)"))
	assert.Equal(t, `<img src=x >`, SanitizeText(`<img src=x onerror=alert(1)>`))
}

func TestSanitizeText_TrimsAndCaps(t *testing.T) {
	assert.Equal(t, "вопрос", SanitizeText("  вопрос  \n"))
	assert.Equal(t, "", SanitizeText(""))

	long := strings.Repeat("a", MaxTextLength+500)
	assert.Len(t, SanitizeText(long), MaxTextLength)
}

func TestSanitizeText_CapsOnRuneBoundary(t *testing.T) {
	long := "a" + strings.Repeat("я", MaxTextLength)
	got := SanitizeText(long)

	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), MaxTextLength)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestSanitizeText_PlainTextUntouched(t *testing.T) {
	text := "Где мой заказ №123? Оплатил еще вчера."
	assert.Equal(t, text, SanitizeText(text))
}

func TestValidTelegramID(t *testing.T) {
	assert.True(t, ValidTelegramID(1))
	assert.True(t, ValidTelegramID(123456789))
	assert.False(t, ValidTelegramID(0))
	assert.False(t, ValidTelegramID(-5))
}
