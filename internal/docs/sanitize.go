package docs

import (
	"regexp"
	"strings"

	"github.com/docscout/docscout/internal/redact"
)

var (
	scriptPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	// Inline event handlers: onclick="...", onload='...', onerror=...
	eventHandlerPattern = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
)

// blockedMetadataKeys are front-matter keys dropped before a document is
// emitted. Matching is case-insensitive on the normalized key.
var blockedMetadataKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"token":         true,
	"apikey":        true,
	"api_key":       true,
	"secret":        true,
	"email":         true,
	"private_key":   true,
	"privatekey":    true,
	"access_key":    true,
	"accesskey":     true,
	"client_secret": true,
}

// sanitizeContent strips active content from document text: script tags and
// inline event handlers.
func sanitizeContent(content string) string {
	content = scriptPattern.ReplaceAllString(content, "")
	content = eventHandlerPattern.ReplaceAllString(content, "")
	return content
}

// sanitizeMetadata drops blocklisted keys and redacts secret-looking values.
func sanitizeMetadata(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return meta
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		norm := strings.ToLower(strings.TrimSpace(k))
		if blockedMetadataKeys[norm] || strings.Contains(norm, "secret") || strings.HasSuffix(norm, "key") {
			continue
		}
		if redact.IsSecretValue(v) {
			v = redact.Mask
		}
		out[k] = v
	}
	return out
}
