package docs

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// codeExtensions maps source file extensions to language names.
var codeExtensions = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
}

// DetectType classifies a file by extension first, then by content sniff for
// ambiguous cases. The returned language is non-empty only for code files.
func DetectType(path string, content []byte) (DocumentType, string) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown", ".mdx":
		return TypeMarkdown, ""
	case ".rst":
		return TypeRST, ""
	case ".html", ".htm":
		return TypeHTML, ""
	case ".yaml", ".yml", ".json", ".xml":
		return TypeStructured, ""
	case ".txt", ".text", "":
		// Ambiguous: a .txt (or extensionless) file holding a JSON object is
		// still structured data.
		if looksLikeJSON(content) {
			return TypeStructured, ""
		}
		return TypePlain, ""
	}
	if lang, ok := codeExtensions[ext]; ok {
		return TypeCode, lang
	}
	return TypePlain, ""
}

// looksLikeJSON sniffs for a JSON object or array.
func looksLikeJSON(content []byte) bool {
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) < 2 {
		return false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return false
	}
	return json.Valid([]byte(trimmed))
}

// IsBinary sniffs whether content is binary: a NUL byte or invalid UTF-8 in
// the first 8000 bytes.
func IsBinary(content []byte) bool {
	probe := content
	if len(probe) > 8000 {
		// Back off to a rune start so a multibyte character straddling the
		// cut is not mistaken for invalid UTF-8.
		end := 8000
		for end > 8000-utf8.UTFMax && !utf8.RuneStart(content[end]) {
			end--
		}
		probe = probe[:end]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return !utf8.Valid(probe)
}
