package core

// TextHit is one full-text search match.
type TextHit struct {
	ItemID    string
	Title     string
	Snippet   string
	Relevance float64
	Kind      string
}

// VectorHit is one vector similarity match.
type VectorHit struct {
	ID         string
	ParentID   string
	Title      string
	Content    string
	Similarity float32
	Kind       string
}

// Hit kinds reported by text and vector search.
const (
	KindSource          = "source"
	KindSourceChunk     = "source_chunk"
	KindSourceEmbedding = "source_embedding"
	KindSourceInsight   = "source_insight"
	KindNote            = "note"
)

// InsightTitle labels an insight hit with its type and the title of its source.
func InsightTitle(insightType, sourceTitle string) string {
	return insightType + " - " + sourceTitle
}
