package docs

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	headingPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	fencePattern      = regexp.MustCompile("^(```|~~~)")
	listItemPattern   = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	tableRowPattern   = regexp.MustCompile(`^\|.*\|\s*$`)
	blockquotePattern = regexp.MustCompile(`^>`)
)

// block is a contiguous run of lines of one kind within a section.
type block struct {
	kind      ChunkType
	text      string
	startLine int // 0-based, relative to the chunked body
	endLine   int
}

// section is one heading and its direct content, before any deeper heading.
type section struct {
	level       int
	title       string
	headingLine string
	path        []string // heading titles from root down to and including this one
	startLine   int      // 0-based line of the heading (or first content line)
	blocks      []block
	hasChildren bool
}

// parseMarkdownSections splits body into heading-delimited sections.
// Headings inside fenced code blocks are not section boundaries.
func parseMarkdownSections(body string) []*section {
	lines := strings.Split(body, "\n")

	var sections []*section
	stack := make([]string, 0, 6) // heading titles by depth
	var current *section
	var contentLines []string
	contentStart := 0
	inFence := false
	var fenceMarker string

	flush := func() {
		if current == nil {
			if len(contentLines) > 0 && strings.TrimSpace(strings.Join(contentLines, "\n")) != "" {
				// Preamble before the first heading.
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

	for i, line := range lines {
		if inFence {
			contentLines = append(contentLines, line)
			if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
				inFence = false
			}
			continue
		}
		if m := fencePattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			inFence = true
			fenceMarker = m[1]
			contentLines = append(contentLines, line)
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			title := strings.TrimSpace(m[2])

			// Truncate the stack to the parent depth, then push.
			if level-1 < len(stack) {
				stack = stack[:level-1]
			}
			stack = append(stack, title)

			current = &section{
				level:       level,
				title:       title,
				headingLine: line,
				path:        append([]string(nil), stack...),
				startLine:   i,
			}
			contentStart = i + 1
			continue
		}

		if len(contentLines) == 0 && current == nil && sections == nil {
			contentStart = i
		}
		contentLines = append(contentLines, line)
	}
	flush()

	markChildren(sections)
	return sections
}

// markChildren sets hasChildren on sections directly followed by deeper ones.
// Sections are in document order, so the immediately following section is
// either a child (deeper level) or a sibling/ancestor.
func markChildren(sections []*section) {
	for i, sec := range sections {
		if i+1 < len(sections) && sections[i+1].level > sec.level && sec.headingLine != "" {
			sec.hasChildren = true
		}
	}
}

// parseBlocks groups lines into typed blocks: code fences, tables, lists,
// blockquotes, and blank-line-separated paragraphs. Fences are atomic.
func parseBlocks(lines []string, offset int) []block {
	var blocks []block
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			i++
			continue
		}

		start := i
		var kind ChunkType

		switch {
		case fencePattern.MatchString(trimmed):
			kind = ChunkCode
			marker := fencePattern.FindStringSubmatch(trimmed)[1]
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), marker) {
				i++
			}
			if i < len(lines) {
				i++ // include closing fence
			}
		case tableRowPattern.MatchString(trimmed):
			kind = ChunkTable
			for i < len(lines) && tableRowPattern.MatchString(strings.TrimSpace(lines[i])) {
				i++
			}
		case listItemPattern.MatchString(line):
			kind = ChunkList
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" &&
				(listItemPattern.MatchString(lines[i]) || strings.HasPrefix(lines[i], "  ")) {
				i++
			}
		case blockquotePattern.MatchString(trimmed):
			kind = ChunkBlockquote
			for i < len(lines) && blockquotePattern.MatchString(strings.TrimSpace(lines[i])) {
				i++
			}
		default:
			kind = ChunkParagraph
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" &&
				!fencePattern.MatchString(strings.TrimSpace(lines[i])) &&
				!tableRowPattern.MatchString(strings.TrimSpace(lines[i])) {
				i++
			}
		}

		blocks = append(blocks, block{
			kind:      kind,
			text:      strings.TrimRight(strings.Join(lines[start:i], "\n"), "\n"),
			startLine: offset + start,
			endLine:   offset + i - 1,
		})
	}
	return blocks
}

// chunkStructured turns sections into chunks: packed content chunks per
// section, plus a summary chunk for headings that contain subsections.
// lineOffset is the number of lines stripped before body (front matter).
func (p *Processor) chunkStructured(doc *Document, sections []*section, lineOffset int, summaries bool) []*Chunk {
	var chunks []*Chunk
	// Summary chunk index by heading level, so child sections can link up.
	parents := make(map[int]*Chunk)

	for _, sec := range sections {
		secChunks := p.packSection(doc, sec, lineOffset)

		var summary *Chunk
		if summaries && sec.hasChildren {
			summary = p.summaryChunk(doc, sec, lineOffset)
			// The summary content may equal the single content chunk
			// (heading-only section); keep just the summary then.
			if len(secChunks) == 1 && secChunks[0].Content == summary.Content {
				secChunks = nil
			}
			chunks = append(chunks, summary)
		}

		// Link this section's chunks to the nearest enclosing summary.
		parent := nearestParent(parents, sec.level)
		if summary != nil {
			if parent != nil {
				summary.ParentID = parent.ID
				parent.ChildIDs = append(parent.ChildIDs, summary.ID)
			}
			for lvl := sec.level + 1; lvl <= 6; lvl++ {
				delete(parents, lvl)
			}
			parents[sec.level] = summary
			parent = summary
		}
		for _, c := range secChunks {
			if parent != nil {
				c.ParentID = parent.ID
				parent.ChildIDs = append(parent.ChildIDs, c.ID)
			}
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// nearestParent finds the closest summary chunk at a shallower level.
func nearestParent(parents map[int]*Chunk, level int) *Chunk {
	for lvl := level - 1; lvl >= 0; lvl-- {
		if p, ok := parents[lvl]; ok {
			return p
		}
	}
	return nil
}

// summaryChunk builds the non-leaf chunk for a heading: the heading line plus
// any introductory paragraph.
func (p *Processor) summaryChunk(doc *Document, sec *section, lineOffset int) *Chunk {
	content := sec.headingLine
	endLine := sec.startLine
	if len(sec.blocks) > 0 && sec.blocks[0].kind == ChunkParagraph {
		content += "\n\n" + sec.blocks[0].text
		endLine = sec.blocks[0].endLine
	}
	return p.newChunk(doc, sec, content, ChunkHeading, lineOffset+sec.startLine, lineOffset+endLine)
}

// packSection assembles a section's blocks into content chunks no larger
// than maxChunkSize, overlapping consecutive chunks by overlapSize.
func (p *Processor) packSection(doc *Document, sec *section, lineOffset int) []*Chunk {
	blocks := sec.blocks
	if len(blocks) == 0 {
		if sec.headingLine == "" {
			return nil
		}
		// Heading with no content of its own still gets a chunk so the
		// section is discoverable.
		line := lineOffset + sec.startLine
		return []*Chunk{p.newChunk(doc, sec, sec.headingLine, ChunkHeading, line, line)}
	}

	// Hard-split any single block larger than the packing budget, at line
	// boundaries.
	blocks = splitOversizeBlocks(blocks, p.packBudget())

	var chunks []*Chunk
	var cur strings.Builder
	var curKind ChunkType
	curStart := sec.startLine
	curEnd := sec.startLine

	if sec.headingLine != "" {
		cur.WriteString(sec.headingLine)
	}

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		kind := curKind
		if kind == "" {
			kind = ChunkHeading
		}
		chunks = append(chunks, p.newChunk(doc, sec, cur.String(), kind, lineOffset+curStart, lineOffset+curEnd))
		cur.Reset()
		curKind = ""
	}

	for _, b := range blocks {
		sep := 0
		if cur.Len() > 0 {
			sep = 2
		}
		if cur.Len() > 0 && cur.Len()+sep+len(b.text) > p.maxChunkSize {
			prev := cur.String()
			flush()
			// Overlap: continuation chunks start with the line-snapped tail
			// of the previous chunk.
			if tail := overlapTail(prev, p.overlapSize); tail != "" {
				cur.WriteString(tail)
			}
			curStart = b.startLine
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		} else {
			curStart = b.startLine
		}
		cur.WriteString(b.text)
		if curKind == "" || curKind == ChunkHeading {
			curKind = b.kind
		}
		curEnd = b.endLine
	}
	flush()

	return chunks
}

// packBudget is the block size cap used when packing: a continuation chunk
// is prefixed with the overlap tail and a blank-line separator, and the
// result must still fit under maxChunkSize.
func (p *Processor) packBudget() int {
	budget := p.maxChunkSize - p.overlapSize - 2
	if budget < 1 {
		budget = p.maxChunkSize
	}
	return budget
}

// splitOversizeBlocks hard-splits blocks larger than maxSize at line
// boundaries, and splits single lines longer than maxSize at the character
// cap (snapped to a rune start). Code fences are kept intact up to the cap;
// beyond it they are split like any other block so the chunk size invariant
// holds.
func splitOversizeBlocks(blocks []block, maxSize int) []block {
	var out []block
	for _, b := range blocks {
		if len(b.text) <= maxSize {
			out = append(out, b)
			continue
		}
		lines := strings.Split(b.text, "\n")
		var part []string
		size := 0
		startLine := b.startLine
		lineNo := b.startLine
		flush := func(end int) {
			if len(part) == 0 {
				return
			}
			out = append(out, block{kind: b.kind, text: strings.Join(part, "\n"), startLine: startLine, endLine: end})
			part = nil
			size = 0
		}
		for _, line := range lines {
			for len(line) > maxSize {
				flush(lineNo - 1)
				cut := maxSize
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				out = append(out, block{kind: b.kind, text: line[:cut], startLine: lineNo, endLine: lineNo})
				line = line[cut:]
				startLine = lineNo
			}
			if size > 0 && size+len(line)+1 > maxSize {
				flush(lineNo - 1)
				startLine = lineNo
			}
			part = append(part, line)
			size += len(line) + 1
			lineNo++
		}
		flush(lineNo - 1)
	}
	return out
}

// overlapTail returns the last overlap characters of content, snapped
// forward to a line boundary so continuation chunks start on a whole line.
func overlapTail(content string, overlap int) string {
	if overlap <= 0 || len(content) == 0 {
		return ""
	}
	if len(content) <= overlap {
		return content
	}
	tail := content[len(content)-overlap:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}

// newChunk constructs a chunk with derived identity and inherited metadata.
func (p *Processor) newChunk(doc *Document, sec *section, content string, kind ChunkType, startLine, endLine int) *Chunk {
	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	return &Chunk{
		ID:             ChunkID(doc.ID, content),
		DocumentID:     doc.ID,
		Repository:     doc.Repository,
		FilePath:       doc.FilePath,
		Type:           kind,
		Content:        content,
		StartLine:      startLine + 1, // 1-indexed
		EndLine:        endLine + 1,
		Section:        sec.title,
		HeadingContext: sec.path,
		Metadata:       meta,
		Hash:           ContentHash(content),
	}
}
