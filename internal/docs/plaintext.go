package docs

import (
	"strings"
)

// chunkPlain splits code, plain text, and structured data files on blank-line
// boundaries, hard-splitting oversize paragraphs at the character cap.
// Continuation chunks carry the line-snapped overlap tail of their
// predecessor.
func (p *Processor) chunkPlain(doc *Document, body string, kind ChunkType) []*Chunk {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	sec := &section{level: 0, title: "", startLine: 0}
	lines := strings.Split(body, "\n")

	// Paragraphs are blank-line separated runs.
	var blocks []block
	start := -1
	for i := 0; i <= len(lines); i++ {
		isBlank := i == len(lines) || strings.TrimSpace(lines[i]) == ""
		if isBlank {
			if start >= 0 {
				blocks = append(blocks, block{
					kind:      kind,
					text:      strings.Join(lines[start:i], "\n"),
					startLine: start,
					endLine:   i - 1,
				})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}

	blocks = splitOversizeBlocks(blocks, p.packBudget())

	var chunks []*Chunk
	var cur strings.Builder
	curStart, curEnd := 0, 0

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, p.newChunk(doc, sec, cur.String(), kind, curStart, curEnd))
		cur.Reset()
	}

	for _, b := range blocks {
		if cur.Len() > 0 && cur.Len()+2+len(b.text) > p.maxChunkSize {
			prev := cur.String()
			flush()
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
		curEnd = b.endLine
	}
	flush()

	return chunks
}
