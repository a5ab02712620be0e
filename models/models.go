package models

import "time"

// Article is one ingested news article. Articles are immutable once written;
// everything else in the system references them by ID.
type Article struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_date"`
	ScrapedAt   time.Time `json:"scraped_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScoredResult is a per-query ranking entry produced by the hybrid scorer.
type ScoredResult struct {
	ArticleID     int64   `json:"article_id"`
	DenseScore    float64 `json:"dense_score"`
	SparseScore   float64 `json:"sparse_score"`
	CombinedScore float64 `json:"combined_score"`
}

// SourceInfo is the article metadata emitted to the client in the sources
// event, matching the frontend contract.
type SourceInfo struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Source          string  `json:"source"`
	URL             string  `json:"url"`
	PublishedAt     string  `json:"published_date,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Query is one inbound ask request after validation. KeywordWeight is nil
// when the client did not set one, so an explicit zero (pure-dense scoring)
// stays distinguishable from "use the configured default".
type Query struct {
	Question      string
	SessionID     string
	TopK          int
	KeywordWeight *float64
}

// Turn roles recorded in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single utterance in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
