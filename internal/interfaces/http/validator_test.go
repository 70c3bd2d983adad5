package http

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidBotName(t *testing.T) {
	assert.True(t, ValidBotName("support-bot"))
	assert.True(t, ValidBotName("Bot #2 (staging)"))

	assert.False(t, ValidBotName(""))
	assert.False(t, ValidBotName("   "))
	assert.False(t, ValidBotName(" padded "))
	assert.False(t, ValidBotName("line\nbreak"))
	assert.False(t, ValidBotName("nul\x00byte"))
	assert.False(t, ValidBotName(strings.Repeat("x", MaxBotNameLength+1)))
}

func TestValidBotToken(t *testing.T) {
	assert.True(t, ValidBotToken("12345678:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.True(t, ValidBotToken("1234567890:AbC-dEf_0123456789AbC-dEf_01234567x"))

	assert.False(t, ValidBotToken(""))
	assert.False(t, ValidBotToken("no-colon-here"))
	assert.False(t, ValidBotToken("1234567:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))  // id too short
	assert.False(t, ValidBotToken("12345678:short"))
	assert.False(t, ValidBotToken("12345678:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA extra"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "clean", SanitizeString("clean"))
	assert.Equal(t, "ab", SanitizeString("a\x00b"))
	assert.Equal(t, "caf", SanitizeString("caf\xff"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
	assert.Equal(t, "ab", TruncateString("ab", 10))
}
