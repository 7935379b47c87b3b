package contextgen

import (
	"context"
	"sort"

	"github.com/docscout/docscout/internal/docs"
)

// GenerateProgressive runs Generate with per-level result caps: a small
// overview first, more on request. Summary chunks sort ahead of leaf chunks
// at the overview level so the caller sees section structure before detail.
func (g *Generator) GenerateProgressive(ctx context.Context, q *Query, level string) (*ProgressiveResult, error) {
	limit, ok := levelLimits[level]
	if !ok {
		level = LevelOverview
		limit = levelLimits[level]
	}

	// Ask for one extra result to detect whether more exist at this level.
	probe := *q
	probe.MaxResults = limit + 1

	result, err := g.Generate(ctx, &probe)
	if err != nil {
		return nil, err
	}

	chunks := result.Chunks
	if level == LevelOverview {
		sort.SliceStable(chunks, func(i, j int) bool {
			si, sj := chunks[i].Chunk.IsSummary(), chunks[j].Chunk.IsSummary()
			if si != sj {
				return si
			}
			return false
		})
	}

	hasMore := len(chunks) > limit
	if hasMore {
		chunks = chunks[:limit]
	}

	rebuilt := g.assemble(chunks, result.Metadata.Strategy, sumTokens(chunks))

	pr := &ProgressiveResult{
		Result:  *rebuilt,
		Level:   level,
		HasMore: hasMore || nextLevels[level] != "",
	}
	if next, ok := nextLevels[level]; ok {
		pr.NextLevel = next
	}
	return pr, nil
}

func sumTokens(chunks []ScoredChunk) int {
	total := 0
	for _, sc := range chunks {
		total += docs.EstimateTokens(sc.Chunk.Content)
	}
	return total
}
