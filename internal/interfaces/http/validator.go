package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxBotNameLength = 64
	MaxTokenLength   = 128
)

var botTokenPattern = regexp.MustCompile(`^[0-9]{8,10}:[A-Za-z0-9_-]{35}$`)

// ValidBotName checks the display name: printable, no control chars, bounded.
func ValidBotName(s string) bool {
	if s == "" || len(s) > MaxBotNameLength || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return strings.TrimSpace(s) == s && strings.TrimSpace(s) != ""
}

// ValidBotToken checks the Telegram bot token shape (numeric ID, colon,
// 35-char secret).
func ValidBotToken(s string) bool {
	if s == "" || len(s) > MaxTokenLength {
		return false
	}
	return botTokenPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString safely truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
