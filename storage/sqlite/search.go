package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// SearchIndex implements storage.SearchIndex over the FTS5 shadow tables and
// the stored embedding blobs.
type SearchIndex struct {
	backend *Backend
	codec   storage.EmbeddingCodec
}

var _ storage.SearchIndex = (*SearchIndex)(nil)

// NewSearchIndex creates a SearchIndex over backend.
func NewSearchIndex(backend *Backend) *SearchIndex {
	return &SearchIndex{backend: backend, codec: storage.BlobCodec{}}
}

// ftsQuery quotes every token so user punctuation never reaches the FTS5 parser.
// Tokens are ANDed.
func ftsQuery(query string) string {
	tokens := core.Tokenize(query)
	for i, t := range tokens {
		tokens[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(tokens, " ")
}

type textQuery struct {
	kind  string
	query string
}

// Each query selects item key, source/note title, insight type, snippet and rank.
var sourceTextQueries = []textQuery{
	{core.KindSource, `SELECT s.id, IFNULL(s.title, ''), '', snippet(source_fts, 1, '<mark>', '</mark>', '...', 64), bm25(source_fts)
		FROM source_fts JOIN source s ON source_fts.rowid = s.id
		WHERE source_fts MATCH ? ORDER BY bm25(source_fts) LIMIT ?`},
	{core.KindSourceChunk, `SELECT se.source_id, IFNULL(s.title, ''), '', snippet(source_embedding_fts, 0, '<mark>', '</mark>', '...', 64), bm25(source_embedding_fts)
		FROM source_embedding_fts
		JOIN source_embedding se ON source_embedding_fts.rowid = se.id
		JOIN source s ON se.source_id = s.id
		WHERE source_embedding_fts MATCH ? ORDER BY bm25(source_embedding_fts) LIMIT ?`},
	{core.KindSourceInsight, `SELECT si.source_id, IFNULL(s.title, ''), IFNULL(si.insight_type, ''), snippet(source_insight_fts, 0, '<mark>', '</mark>', '...', 64), bm25(source_insight_fts)
		FROM source_insight_fts
		JOIN source_insight si ON source_insight_fts.rowid = si.id
		JOIN source s ON si.source_id = s.id
		WHERE source_insight_fts MATCH ? ORDER BY bm25(source_insight_fts) LIMIT ?`},
}

var noteTextQueries = []textQuery{
	{core.KindNote, `SELECT n.id, IFNULL(n.title, ''), '', snippet(note_fts, 1, '<mark>', '</mark>', '...', 64), bm25(note_fts)
		FROM note_fts JOIN note n ON note_fts.rowid = n.id
		WHERE note_fts MATCH ? ORDER BY bm25(note_fts) LIMIT ?`},
}

// TextSearch queries each FTS5 table in scope. Relevance is the negated bm25
// rank, so larger is better. Chunk and insight hits point at their source.
func (s *SearchIndex) TextSearch(ctx context.Context, query string, limit int, scope storage.Scope) ([]core.TextHit, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return []core.TextHit{}, nil
	}

	var queries []textQuery
	if scope.Sources {
		queries = append(queries, sourceTextQueries...)
	}
	if scope.Notes {
		queries = append(queries, noteTextQueries...)
	}

	hits := []core.TextHit{}
	for _, q := range queries {
		found, err := s.runTextQuery(ctx, q, match, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, found...)
	}
	return hits, nil
}

func (s *SearchIndex) runTextQuery(ctx context.Context, q textQuery, match string, limit int) ([]core.TextHit, error) {
	rows, err := s.backend.db.QueryContext(ctx, q.query, match, limit)
	if err != nil {
		return nil, fmt.Errorf("%s text search: %w", q.kind, mapError(err))
	}
	defer rows.Close()

	table := core.TableSource
	if q.kind == core.KindNote {
		table = core.TableNote
	}
	var hits []core.TextHit
	for rows.Next() {
		var (
			key                         int64
			title, insightType, snippet string
			rank                        float64
		)
		if err := rows.Scan(&key, &title, &insightType, &snippet, &rank); err != nil {
			return nil, mapError(err)
		}
		if q.kind == core.KindSourceInsight {
			title = core.InsightTitle(insightType, title)
		}
		hits = append(hits, core.TextHit{
			ItemID:    core.FormatIntID(table, key),
			Title:     title,
			Snippet:   snippet,
			Relevance: -rank,
			Kind:      q.kind,
		})
	}
	return hits, rows.Err()
}

type embeddingQuery struct {
	kind        string
	table       string
	parentTable string
	query       string
}

// Each query selects row key, parent key, title, insight type, content and embedding.
var sourceEmbeddingQueries = []embeddingQuery{
	{core.KindSourceEmbedding, core.TableSourceEmbedding, core.TableSource,
		`SELECT se.id, se.source_id, IFNULL(s.title, ''), '', IFNULL(se.content, ''), se.embedding
		FROM source_embedding se JOIN source s ON se.source_id = s.id
		WHERE se.embedding IS NOT NULL`},
	{core.KindSourceInsight, core.TableSourceInsight, core.TableSource,
		`SELECT si.id, si.source_id, IFNULL(s.title, ''), IFNULL(si.insight_type, ''), IFNULL(si.content, ''), si.embedding
		FROM source_insight si JOIN source s ON si.source_id = s.id
		WHERE si.embedding IS NOT NULL`},
}

var noteEmbeddingQueries = []embeddingQuery{
	{core.KindNote, core.TableNote, core.TableNote,
		`SELECT id, id, IFNULL(title, ''), '', IFNULL(content, ''), embedding
		FROM note WHERE embedding IS NOT NULL`},
}

// ScanEmbeddings streams every stored embedding in scope, decoding each blob.
func (s *SearchIndex) ScanEmbeddings(ctx context.Context, scope storage.Scope, fn func(storage.EmbeddingCandidate) error) error {
	var queries []embeddingQuery
	if scope.Sources {
		queries = append(queries, sourceEmbeddingQueries...)
	}
	if scope.Notes {
		queries = append(queries, noteEmbeddingQueries...)
	}
	for _, q := range queries {
		if err := s.scan(ctx, q, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *SearchIndex) scan(ctx context.Context, q embeddingQuery, fn func(storage.EmbeddingCandidate) error) error {
	rows, err := s.backend.db.QueryContext(ctx, q.query)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, parent                 int64
			title, insightType, content string
			blob                        []byte
		)
		if err := rows.Scan(&key, &parent, &title, &insightType, &content, &blob); err != nil {
			return mapError(err)
		}
		vec, err := s.codec.Decode(blob)
		if err != nil {
			return fmt.Errorf("%s: %w", core.FormatIntID(q.table, key), err)
		}
		if len(vec) == 0 {
			continue
		}
		if q.kind == core.KindSourceInsight {
			title = core.InsightTitle(insightType, title)
		}
		err = fn(storage.EmbeddingCandidate{
			ID:       core.FormatIntID(q.table, key),
			ParentID: core.FormatIntID(q.parentTable, parent),
			Title:    title,
			Content:  content,
			Kind:     q.kind,
			Vector:   vec,
		})
		if err != nil {
			return err
		}
	}
	return mapError(rows.Err())
}
