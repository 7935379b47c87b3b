// Package redact masks secrets in strings before they reach any external
// surface: log lines, error payloads, API responses.
package redact

import (
	"regexp"
	"strings"
)

// Mask is the replacement string for redacted values.
const Mask = "[REDACTED]"

var (
	// OpenAI-style keys (sk-...) and long hex tokens.
	keyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`)
	hexPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)

	// JWTs: three dot-separated base64url segments.
	jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)

	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// password: "..." / password=... / token: ... patterns.
	credPattern = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key)\s*[:=]\s*("[^"]*"|'[^']*'|\S+)`)
)

// String masks all secret-like patterns in s.
func String(s string) string {
	if s == "" {
		return s
	}
	s = credPattern.ReplaceAllString(s, "$1: "+Mask)
	s = jwtPattern.ReplaceAllString(s, Mask)
	s = keyPattern.ReplaceAllString(s, Mask)
	s = hexPattern.ReplaceAllStringFunc(s, func(m string) string {
		// 40- and 64-hex strings are usually content hashes or commit SHAs,
		// which are not secrets and are needed for status output.
		if len(m) == 40 || len(m) == 64 {
			return m
		}
		return Mask
	})
	s = emailPattern.ReplaceAllString(s, Mask)
	s = ipv4Pattern.ReplaceAllStringFunc(s, func(m string) string {
		if m == "127.0.0.1" || m == "0.0.0.0" {
			return m
		}
		return Mask
	})
	return s
}

// Error masks secrets in an error's message. Nil-safe.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// IsSecretValue reports whether a value on its own looks like a secret.
// Used by the document sanitizer to drop front-matter values.
func IsSecretValue(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if keyPattern.MatchString(v) || jwtPattern.MatchString(v) {
		return true
	}
	if hexPattern.MatchString(v) && len(v) != 40 && len(v) != 64 {
		return true
	}
	return false
}
