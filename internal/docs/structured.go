package docs

import (
	"regexp"
	"strings"
)

// rstAdornmentChars are the punctuation characters RST accepts as section
// underlines.
const rstAdornmentChars = "=-~^\"'`+*#"

// isRSTAdornment reports whether line is a section underline: one adornment
// character repeated at least three times, optionally followed by spaces.
func isRSTAdornment(line string) bool {
	line = strings.TrimRight(line, " \t")
	if len(line) < 3 {
		return false
	}
	c := line[0]
	if !strings.ContainsRune(rstAdornmentChars, rune(c)) {
		return false
	}
	for i := 1; i < len(line); i++ {
		if line[i] != c {
			return false
		}
	}
	return true
}

// parseRSTSections converts reStructuredText into the section model.
// Heading levels are assigned by first appearance of each adornment
// character, per the RST convention.
func parseRSTSections(body string) []*section {
	lines := strings.Split(body, "\n")
	adornmentLevel := make(map[byte]int)

	var sections []*section
	stack := make([]string, 0, 6)
	var current *section
	var contentLines []string
	contentStart := 0

	flush := func() {
		if current == nil {
			if strings.TrimSpace(strings.Join(contentLines, "\n")) != "" {
				pre := &section{level: 0, startLine: contentStart}
				pre.blocks = parseBlocks(contentLines, contentStart)
				sections = append(sections, pre)
			}
		} else {
			current.blocks = parseBlocks(contentLines, contentStart)
			sections = append(sections, current)
		}
		contentLines = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		// A heading is a non-empty line whose next line is an adornment at
		// least as long as the title.
		if i+1 < len(lines) && strings.TrimSpace(line) != "" &&
			isRSTAdornment(lines[i+1]) &&
			len(strings.TrimRight(lines[i+1], " ")) >= len(strings.TrimRight(line, " ")) {

			adorn := strings.TrimSpace(lines[i+1])[0]
			level, ok := adornmentLevel[adorn]
			if !ok {
				level = len(adornmentLevel) + 1
				adornmentLevel[adorn] = level
			}

			flush()
			title := strings.TrimSpace(line)
			if level-1 < len(stack) {
				stack = stack[:level-1]
			}
			stack = append(stack, title)

			current = &section{
				level:       level,
				title:       title,
				headingLine: title,
				path:        append([]string(nil), stack...),
				startLine:   i,
			}
			contentStart = i + 2
			i++ // skip the adornment line
			continue
		}
		contentLines = append(contentLines, line)
	}
	flush()

	markChildren(sections)
	return sections
}

var (
	htmlHeadingPattern = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	htmlTagPattern     = regexp.MustCompile(`(?s)<[^>]+>`)
	htmlEntityReplacer = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
)

// parseHTMLSections converts HTML into the section model: <h1>-<h6> become
// headings, remaining markup is stripped to text.
func parseHTMLSections(body string) []*section {
	type marker struct {
		level int
		title string
		start int
		end   int
	}
	var markers []marker
	for _, m := range htmlHeadingPattern.FindAllStringSubmatchIndex(body, -1) {
		level := int(body[m[2]])
		title := htmlText(body[m[4]:m[5]])
		markers = append(markers, marker{level: level - '0', title: title, start: m[0], end: m[1]})
	}

	var sections []*section
	stack := make([]string, 0, 6)

	appendSection := func(level int, title, content string, startLine int) {
		if level > 0 {
			if level-1 < len(stack) {
				stack = stack[:level-1]
			}
			stack = append(stack, title)
		}
		sec := &section{
			level:       level,
			title:       title,
			headingLine: title,
			path:        append([]string(nil), stack...),
			startLine:   startLine,
		}
		lines := strings.Split(content, "\n")
		sec.blocks = parseBlocks(lines, startLine)
		sections = append(sections, sec)
	}

	if len(markers) == 0 {
		if text := htmlText(body); strings.TrimSpace(text) != "" {
			appendSection(0, "", text, 0)
		}
		markChildren(sections)
		return sections
	}

	if pre := htmlText(body[:markers[0].start]); strings.TrimSpace(pre) != "" {
		appendSection(0, "", pre, 0)
	}
	for i, m := range markers {
		end := len(body)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		startLine := strings.Count(body[:m.start], "\n")
		appendSection(m.level, m.title, htmlText(body[m.end:end]), startLine)
	}

	markChildren(sections)
	return sections
}

// htmlText strips tags and decodes common entities.
func htmlText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = htmlEntityReplacer.Replace(s)
	// Collapse runs of blank lines left by stripped block elements.
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, strings.TrimSpace(line))
	}
	return strings.Join(out, "\n")
}
