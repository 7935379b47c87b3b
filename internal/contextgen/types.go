// Package contextgen turns retrieval hits into ready-to-use documentation
// context: search, re-ranking, deduplication, token budgeting, and markdown
// assembly.
package contextgen

import (
	"context"
	"time"

	"github.com/docscout/docscout/internal/docs"
)

// Search strategies.
const (
	StrategySemantic = "semantic"
	StrategyKeyword  = "keyword"
	StrategyHybrid   = "hybrid"
	StrategySimple   = "simple_text"
)

// Defaults for generation.
const (
	DefaultMaxResults     = 20
	DefaultMaxTokens      = 8000
	LimitMultiplier       = 4
	GenerateTimeout       = 15 * time.Second
	confidenceTopK        = 5
	DefaultScoreThreshold = 0.7
)

// Progressive disclosure levels.
const (
	LevelOverview      = "overview"
	LevelDetailed      = "detailed"
	LevelComprehensive = "comprehensive"
)

// levelLimits caps results per progressive level.
var levelLimits = map[string]int{
	LevelOverview:      3,
	LevelDetailed:      10,
	LevelComprehensive: 25,
}

// nextLevels orders the progressive ladder.
var nextLevels = map[string]string{
	LevelOverview: LevelDetailed,
	LevelDetailed: LevelComprehensive,
}

// Query describes a context generation request.
type Query struct {
	Task         string   `json:"task"`
	Language     string   `json:"language,omitempty"`
	Framework    string   `json:"framework,omitempty"`
	Context      string   `json:"context,omitempty"`
	MaxResults   int      `json:"maxResults,omitempty"`
	Repositories []string `json:"repositories,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Strategy     string   `json:"strategy,omitempty"`
}

// ScoredChunk is a kept chunk with its ranking breakdown.
type ScoredChunk struct {
	Chunk       *docs.Chunk `json:"chunk"`
	Semantic    float64     `json:"semanticScore"`
	Final       float64     `json:"finalScore"`
	Explanation string      `json:"explanation"`
}

// Source names one contributing file.
type Source struct {
	FilePath   string  `json:"filepath"`
	Repository string  `json:"repository"`
	Relevance  float64 `json:"relevance"`
}

// Metadata describes how a result was assembled.
type Metadata struct {
	Sources              []Source  `json:"sources"`
	TotalChunks          int       `json:"totalChunks"`
	TokensUsed           int       `json:"tokensUsed"`
	Strategy             string    `json:"strategy"`
	Timestamp            time.Time `json:"timestamp"`
	RelevantRepositories []string  `json:"relevantRepositories"`
	Confidence           float64   `json:"confidence,omitempty"`
}

// Result is the assembled context.
type Result struct {
	Content  string        `json:"content"`
	Chunks   []ScoredChunk `json:"chunks"`
	Metadata Metadata      `json:"metadata"`
}

// ProgressiveResult wraps a Result with disclosure cursor state.
type ProgressiveResult struct {
	Result
	Level     string `json:"level"`
	HasMore   bool   `json:"hasMore"`
	NextLevel string `json:"nextLevel,omitempty"`
}

// Reranker adjusts ranked chunks after the base ranker. Plugins register
// rerankers per strategy; they run in registration order.
type Reranker interface {
	Name() string
	// Strategies lists the strategies this reranker participates in.
	// Empty means all.
	Strategies() []string
	Rerank(ctx context.Context, q *Query, chunks []ScoredChunk) []ScoredChunk
}
