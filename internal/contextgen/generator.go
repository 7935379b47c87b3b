package contextgen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/docscout/docscout/internal/catalog"
	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/embed"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/index"
)

// Generator assembles documentation context from the indexes.
type Generator struct {
	embedder embed.Embedder
	vectors  index.VectorIndex
	keywords *index.KeywordIndex
	catalog  *catalog.Catalog
	cfg      *config.Manager
	logger   *slog.Logger

	rerankers []Reranker
}

// NewGenerator wires the generator. keywords may be nil (semantic-only
// deployments); catalog backs the degraded path and must be set.
func NewGenerator(embedder embed.Embedder, vectors index.VectorIndex, keywords *index.KeywordIndex,
	cat *catalog.Catalog, cfg *config.Manager, logger *slog.Logger) *Generator {
	return &Generator{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		catalog:  cat,
		cfg:      cfg,
		logger:   logger,
	}
}

// AddReranker appends a plugin reranker. Rerankers run in registration order.
func (g *Generator) AddReranker(r Reranker) {
	g.rerankers = append(g.rerankers, r)
}

// Generate runs the full pipeline: search, re-rank, dedupe, budget, assemble.
// On embedding or vector backend failure it degrades to substring search.
func (g *Generator) Generate(ctx context.Context, q *Query) (*Result, error) {
	if strings.TrimSpace(q.Task) == "" {
		return nil, errors.New(errors.KindValidation, "task must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()

	gen := g.cfg.Snapshot().ContextGeneration
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = gen.MaxResults
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	maxTokens := gen.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	strategy := q.Strategy
	if strategy == "" {
		strategy = StrategyHybrid
	}

	ranked, usedStrategy, err := g.retrieve(ctx, q, strategy, maxResults)
	if err != nil {
		return nil, err
	}

	for _, r := range g.rerankers {
		if rerankerApplies(r, usedStrategy) {
			ranked = r.Rerank(ctx, q, ranked)
		}
	}

	ranked = dedupe(ranked)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Final > ranked[j].Final })
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	kept, tokensUsed := applyTokenBudget(ranked, maxTokens)
	return g.assemble(kept, usedStrategy, tokensUsed), nil
}

// retrieve runs the chosen strategy, degrading to substring search when the
// embedding provider or vector backend fails.
func (g *Generator) retrieve(ctx context.Context, q *Query, strategy string, maxResults int) ([]ScoredChunk, string, error) {
	filter := g.buildFilter(q)

	switch strategy {
	case StrategyKeyword:
		hits, err := g.keywordSearch(ctx, q, filter, maxResults)
		if err != nil {
			g.logger.Warn("keyword search failed, degrading to substring scan", slog.String("error", err.Error()))
			return g.simpleSearch(ctx, q, maxResults)
		}
		return g.rank(q, hits), StrategyKeyword, nil

	case StrategySemantic:
		hits, err := g.semanticSearch(ctx, q, filter, maxResults)
		if err != nil {
			g.logger.Warn("semantic search failed, degrading to substring scan", slog.String("error", err.Error()))
			return g.simpleSearch(ctx, q, maxResults)
		}
		return g.rank(q, hits), StrategySemantic, nil

	default: // hybrid
		semantic, semErr := g.semanticSearch(ctx, q, filter, maxResults)
		var keyword []index.SearchResult
		var kwErr error
		if g.keywords != nil {
			keyword, kwErr = g.keywordSearch(ctx, q, filter, maxResults)
		}
		if semErr != nil && (g.keywords == nil || kwErr != nil) {
			g.logger.Warn("hybrid search failed, degrading to substring scan",
				slog.String("error", semErr.Error()))
			return g.simpleSearch(ctx, q, maxResults)
		}
		return g.rank(q, mergeHits(semantic, keyword)), StrategyHybrid, nil
	}
}

func (g *Generator) semanticSearch(ctx context.Context, q *Query, filter *index.Filter, maxResults int) ([]index.SearchResult, error) {
	vector, err := g.embedder.Embed(ctx, q.Task)
	if err != nil {
		return nil, err
	}
	threshold := g.cfg.Snapshot().ContextGeneration.ScoreThreshold
	return g.vectors.Search(ctx, vector, index.SearchOptions{
		Limit:          LimitMultiplier * maxResults,
		ScoreThreshold: threshold,
		Filter:         filter,
	})
}

func (g *Generator) keywordSearch(ctx context.Context, q *Query, filter *index.Filter, maxResults int) ([]index.SearchResult, error) {
	if g.keywords == nil {
		return nil, errors.New(errors.KindBackend, "keyword index not configured")
	}
	return g.keywords.Search(ctx, q.Task, LimitMultiplier*maxResults, filter)
}

// simpleSearch is the degraded path: substring scan over the catalog with
// constant score.
func (g *Generator) simpleSearch(ctx context.Context, q *Query, maxResults int) ([]ScoredChunk, string, error) {
	chunks, err := g.catalog.SearchSubstring(ctx, q.Task, q.Repositories, LimitMultiplier*maxResults)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.KindBackend, "degraded search")
	}
	out := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, ScoredChunk{
			Chunk:       c,
			Semantic:    1.0,
			Final:       1.0,
			Explanation: "substring match",
		})
	}
	return out, StrategySimple, nil
}

func (g *Generator) buildFilter(q *Query) *index.Filter {
	f := &index.Filter{Repositories: q.Repositories}
	if len(q.Categories) == 1 {
		f.Metadata = map[string]string{"category": q.Categories[0]}
	}
	// Multiple categories become a post-rank filter in rank().
	if len(f.Repositories) == 0 && f.Metadata == nil {
		return nil
	}
	return f
}

// mergeHits combines semantic and keyword results, keeping the max score per
// chunk ID.
func mergeHits(semantic, keyword []index.SearchResult) []index.SearchResult {
	seen := make(map[string]int, len(semantic))
	out := make([]index.SearchResult, 0, len(semantic)+len(keyword))
	for _, h := range semantic {
		seen[h.Chunk.ID] = len(out)
		out = append(out, h)
	}
	for _, h := range keyword {
		if i, ok := seen[h.Chunk.ID]; ok {
			if h.Score > out[i].Score {
				out[i].Score = h.Score
			}
			continue
		}
		out = append(out, h)
	}
	return out
}

// rank applies the priority and hint-match boosts:
// final = semantic x priorityWeight x (1 + 0.15 lang + 0.15 framework + 0.10 category).
func (g *Generator) rank(q *Query, hits []index.SearchResult) []ScoredChunk {
	cfg := g.cfg.Snapshot()
	weights := cfg.ContextGeneration.PriorityWeights
	if len(weights) == 0 {
		weights = config.DefaultPriorityWeights()
	}

	priorities := make(map[string]config.Priority, len(cfg.Repositories))
	categories := make(map[string]string, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		p := r.Priority
		if p == "" {
			p = config.PriorityMedium
		}
		priorities[r.Name] = p
		categories[r.Name] = r.Category
	}

	wantCategories := make(map[string]bool, len(q.Categories))
	for _, c := range q.Categories {
		wantCategories[strings.ToLower(c)] = true
	}

	out := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		c := h.Chunk
		if len(wantCategories) > 0 {
			cat := strings.ToLower(chunkCategory(c, categories))
			if !wantCategories[cat] {
				continue
			}
		}

		priority, ok := priorities[c.Repository]
		if !ok {
			priority = config.PriorityMedium
		}
		weight, ok := weights[priority]
		if !ok {
			weight = 1.0
		}

		var reasons []string
		reasons = append(reasons, fmt.Sprintf("semantic similarity %.2f", h.Score))
		boost := 1.0
		if q.Language != "" && strings.EqualFold(c.Metadata["language"], q.Language) {
			boost += 0.15
			reasons = append(reasons, "language match")
		}
		if q.Framework != "" && strings.EqualFold(c.Metadata["framework"], q.Framework) {
			boost += 0.15
			reasons = append(reasons, "framework match")
		}
		if len(wantCategories) > 0 && wantCategories[strings.ToLower(chunkCategory(c, categories))] {
			boost += 0.10
			reasons = append(reasons, "category match")
		}
		if priority != config.PriorityMedium {
			reasons = append(reasons, "priority "+string(priority))
		}

		out = append(out, ScoredChunk{
			Chunk:       c,
			Semantic:    h.Score,
			Final:       h.Score * weight * boost,
			Explanation: strings.Join(reasons, "; "),
		})
	}
	return out
}

func chunkCategory(c *docs.Chunk, repoCategories map[string]string) string {
	if cat, ok := c.Metadata["category"]; ok && cat != "" {
		return cat
	}
	return repoCategories[c.Repository]
}

// dedupe keeps the max-scoring chunk per (repository, filepath, section).
// The repository is part of the key: the same path in two repositories is
// two distinct documents.
func dedupe(chunks []ScoredChunk) []ScoredChunk {
	type key struct{ repo, path, section string }
	best := make(map[key]int, len(chunks))
	out := make([]ScoredChunk, 0, len(chunks))
	for _, sc := range chunks {
		k := key{sc.Chunk.Repository, sc.Chunk.FilePath, sc.Chunk.Section}
		if i, ok := best[k]; ok {
			if sc.Final > out[i].Final {
				out[i] = sc
			}
			continue
		}
		best[k] = len(out)
		out = append(out, sc)
	}
	return out
}

// applyTokenBudget keeps chunks until the estimated token count reaches the
// budget. Chunks are never split.
func applyTokenBudget(chunks []ScoredChunk, maxTokens int) ([]ScoredChunk, int) {
	var kept []ScoredChunk
	used := 0
	for _, sc := range chunks {
		tokens := docs.EstimateTokens(sc.Chunk.Content)
		if used+tokens > maxTokens && len(kept) > 0 {
			break
		}
		kept = append(kept, sc)
		used += tokens
		if used >= maxTokens {
			break
		}
	}
	return kept, used
}

// assemble renders the markdown content grouped by repository then filepath
// and fills result metadata.
func (g *Generator) assemble(chunks []ScoredChunk, strategy string, tokensUsed int) *Result {
	result := &Result{
		Chunks: chunks,
		Metadata: Metadata{
			TotalChunks: len(chunks),
			TokensUsed:  tokensUsed,
			Strategy:    strategy,
			Timestamp:   time.Now().UTC(),
		},
	}
	if len(chunks) == 0 {
		result.Content = "No relevant documentation found."
		result.Chunks = []ScoredChunk{}
		result.Metadata.Sources = []Source{}
		result.Metadata.RelevantRepositories = []string{}
		return result
	}

	// Group by repository, then filepath, preserving rank order inside
	// each group.
	repoOrder := make([]string, 0)
	byRepo := make(map[string][]ScoredChunk)
	for _, sc := range chunks {
		repo := sc.Chunk.Repository
		if _, ok := byRepo[repo]; !ok {
			repoOrder = append(repoOrder, repo)
		}
		byRepo[repo] = append(byRepo[repo], sc)
	}

	var b strings.Builder
	b.WriteString("# Documentation Context\n")
	seenSources := make(map[string]bool)

	for _, repo := range repoOrder {
		fmt.Fprintf(&b, "\n## Repository: %s\n", repo)

		pathOrder := make([]string, 0)
		byPath := make(map[string][]ScoredChunk)
		for _, sc := range byRepo[repo] {
			path := sc.Chunk.FilePath
			if _, ok := byPath[path]; !ok {
				pathOrder = append(pathOrder, path)
			}
			byPath[path] = append(byPath[path], sc)
		}

		for _, path := range pathOrder {
			fmt.Fprintf(&b, "\n### %s\n", path)
			for _, sc := range byPath[path] {
				b.WriteString("\n")
				b.WriteString(sc.Chunk.Content)
				fmt.Fprintf(&b, "\n\n_Relevance: %s_\n", sc.Explanation)

				srcKey := repo + "\x00" + path
				if !seenSources[srcKey] {
					seenSources[srcKey] = true
					result.Metadata.Sources = append(result.Metadata.Sources, Source{
						FilePath:   path,
						Repository: repo,
						Relevance:  sc.Final,
					})
				}
			}
		}
		result.Metadata.RelevantRepositories = append(result.Metadata.RelevantRepositories, repo)
	}
	result.Content = b.String()

	// Confidence: mean final score of the top hits.
	k := confidenceTopK
	if len(chunks) < k {
		k = len(chunks)
	}
	var sum float64
	for _, sc := range chunks[:k] {
		sum += sc.Final
	}
	result.Metadata.Confidence = sum / float64(k)
	return result
}

func rerankerApplies(r Reranker, strategy string) bool {
	strategies := r.Strategies()
	if len(strategies) == 0 {
		return true
	}
	for _, s := range strategies {
		if s == strategy {
			return true
		}
	}
	return false
}
