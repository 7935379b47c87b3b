package docs

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterPattern matches a leading ---\n...\n--- block.
var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n?`)

// knownMetadataKeys are promoted front-matter keys. Unknown keys are
// preserved (subject to sanitization).
var knownMetadataKeys = map[string]bool{
	"title":       true,
	"description": true,
	"tags":        true,
	"category":    true,
	"language":    true,
	"framework":   true,
	"version":     true,
	"author":      true,
	"date":        true,
}

// extractFrontMatter parses a leading YAML front-matter block.
// It returns the extracted metadata and the remaining content. Malformed
// blocks are ignored: the document still processes with the block left in
// place as ordinary text.
func extractFrontMatter(content string) (map[string]string, string) {
	match := frontmatterPattern.FindStringSubmatch(content)
	if match == nil {
		return nil, content
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(match[1]), &raw); err != nil {
		return nil, content
	}

	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		meta[key] = flattenYAMLValue(v)
	}
	return meta, content[len(match[0]):]
}

// flattenYAMLValue renders a YAML scalar or list as a string.
// Lists join with ", " (tags: [a, b] -> "a, b").
func flattenYAMLValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, flattenYAMLValue(item))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
