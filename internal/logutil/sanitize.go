package logutil

import "strings"

// SanitizeForLog removes newlines and control characters from user-provided
// strings to prevent log injection, where a remote path or host name could
// otherwise forge extra log entries.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r >= 32 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Redact masks a secret for diagnostic output. Empty secrets stay empty so
// "no password" and "password set" remain distinguishable.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}
