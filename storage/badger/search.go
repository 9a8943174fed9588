package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// SearchIndex implements storage.SearchIndex over the BM25 postings and
// vector keys maintained by Repository.
type SearchIndex struct {
	repo *Repository
}

var _ storage.SearchIndex = (*SearchIndex)(nil)

// NewSearchIndex creates a SearchIndex over backend.
func NewSearchIndex(backend *Backend) *SearchIndex {
	return &SearchIndex{repo: NewRepository(backend)}
}

type textKind struct {
	kind         string
	table        string
	snippetField string
}

var (
	sourceTextKinds = []textKind{
		{core.KindSource, core.TableSource, "full_text"},
		{core.KindSourceChunk, core.TableSourceEmbedding, "content"},
		{core.KindSourceInsight, core.TableSourceInsight, "content"},
	}
	noteTextKinds = []textKind{
		{core.KindNote, core.TableNote, "content"},
	}
)

// TextSearch scores each table in scope with BM25 and returns at most limit
// hits per table. Chunk and insight hits point at their source.
func (s *SearchIndex) TextSearch(ctx context.Context, query string, limit int, scope storage.Scope) ([]core.TextHit, error) {
	terms := queryTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []core.TextHit{}, nil
	}

	var kinds []textKind
	if scope.Sources {
		kinds = append(kinds, sourceTextKinds...)
	}
	if scope.Notes {
		kinds = append(kinds, noteTextKinds...)
	}

	hits := []core.TextHit{}
	err := s.repo.backend.WithTx(func(tx *badger.Txn) error {
		for _, k := range kinds {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := s.searchKind(tx, k, terms, limit)
			if err != nil {
				return fmt.Errorf("%s text search: %w", k.kind, err)
			}
			hits = append(hits, found...)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (s *SearchIndex) searchKind(tx *badger.Txn, k textKind, terms []string, limit int) ([]core.TextHit, error) {
	scored, err := bm25(tx, s.repo.keys, k.table, terms)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(scored, func(a, b scoredKey) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	def, err := storage.Table(k.table)
	if err != nil {
		return nil, err
	}
	var hits []core.TextHit
	for _, sk := range scored {
		rec, err := s.repo.loadRecord(tx, def, sk.key)
		if err != nil {
			return nil, err
		}
		hit := core.TextHit{
			ItemID:    rec.ID(),
			Title:     rec.String("title"),
			Snippet:   snippet(rec.String(k.snippetField), terms),
			Relevance: sk.score,
			Kind:      k.kind,
		}
		if def.Parent != "" {
			parent, err := s.parentTitle(tx, rec.String(def.Parent))
			if err != nil {
				return nil, err
			}
			hit.ItemID = rec.String(def.Parent)
			hit.Title = parent
			if k.kind == core.KindSourceInsight {
				hit.Title = core.InsightTitle(rec.String("insight_type"), parent)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *SearchIndex) parentTitle(tx *badger.Txn, id string) (string, error) {
	rid, err := core.ParseIDFor(core.TableSource, id)
	if err != nil {
		return "", err
	}
	def, err := storage.Table(core.TableSource)
	if err != nil {
		return "", err
	}
	rec, err := s.repo.loadRecord(tx, def, rid.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.String("title"), nil
}

type embeddingKind struct {
	kind  string
	table string
}

var (
	sourceEmbeddingKinds = []embeddingKind{
		{core.KindSourceEmbedding, core.TableSourceEmbedding},
		{core.KindSourceInsight, core.TableSourceInsight},
	}
	noteEmbeddingKinds = []embeddingKind{
		{core.KindNote, core.TableNote},
	}
)

// ScanEmbeddings walks the vector keys of every table in scope.
// Empty vectors are skipped.
func (s *SearchIndex) ScanEmbeddings(ctx context.Context, scope storage.Scope, fn func(storage.EmbeddingCandidate) error) error {
	var kinds []embeddingKind
	if scope.Sources {
		kinds = append(kinds, sourceEmbeddingKinds...)
	}
	if scope.Notes {
		kinds = append(kinds, noteEmbeddingKinds...)
	}
	return s.repo.backend.WithTx(func(tx *badger.Txn) error {
		for _, k := range kinds {
			if err := s.scanKind(ctx, tx, k, fn); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

func (s *SearchIndex) scanKind(ctx context.Context, tx *badger.Txn, k embeddingKind, fn func(storage.EmbeddingCandidate) error) error {
	def, err := storage.Table(k.table)
	if err != nil {
		return err
	}
	return scanPrefix(tx, s.repo.keys.prefix(vectorPrefix, k.table), false, func(suffix []byte, item *badger.Item) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := string(suffix)
		vec, err := vectorValue(item)
		if err != nil {
			return fmt.Errorf("%s: %w", core.FormatID(k.table, key), err)
		}
		if len(vec) == 0 {
			return nil
		}
		rec, err := s.repo.loadRecord(tx, def, key)
		if err != nil {
			return err
		}
		c := storage.EmbeddingCandidate{
			ID:       rec.ID(),
			ParentID: rec.ID(),
			Title:    rec.String("title"),
			Content:  rec.String("content"),
			Kind:     k.kind,
			Vector:   vec,
		}
		if def.Parent != "" {
			parent, err := s.parentTitle(tx, rec.String(def.Parent))
			if err != nil {
				return err
			}
			c.ParentID = rec.String(def.Parent)
			c.Title = parent
			if k.kind == core.KindSourceInsight {
				c.Title = core.InsightTitle(rec.String("insight_type"), parent)
			}
		}
		return fn(c)
	})
}
