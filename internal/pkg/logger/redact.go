package logger

import (
	"regexp"
	"strings"
)

// Tokens of 20+ consecutive alphanumerics are treated as potential
// secrets (API keys, bearer tokens) and masked before any sink sees them.
var secretRegex = regexp.MustCompile(`[A-Za-z0-9]{20,}`)

// Redact masks any run of 20 or more alphanumeric characters with
// [REDACTED]. Applied to every message and field value before output,
// buffering, or persistence.
func Redact(s string) string {
	if s == "" {
		return s
	}
	return secretRegex.ReplaceAllString(s, "[REDACTED]")
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
