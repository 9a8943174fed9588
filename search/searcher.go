package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/notebase/ai"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/viterin/vek/vek32"
)

const defaultBatchSize = 256

// Searcher ranks text and vector matches from a storage.SearchIndex.
type Searcher struct {
	index     storage.SearchIndex
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithEmbedder sets the embedder SearchText uses to turn a query into a vector.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(s *Searcher) error {
		s.embedder = embedder
		return nil
	}
}

// WithPoolSize sets the number of goroutines scoring vectors.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Searcher) error {
		pool, err := ants.NewPool(max(size, 1))
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithBatchSize sets how many candidates one pool task scores.
func WithBatchSize(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		s.batchSize = n
		return nil
	}
}

// NewSearcher creates a new searcher over index.
func NewSearcher(index storage.SearchIndex, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	pool, err := ants.NewPool(max(runtime.NumCPU(), 1))
	if err != nil {
		return nil, err
	}

	s := &Searcher{
		index:     index,
		pool:      pool,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")
	return s, nil
}

// Release frees the scoring pool. The searcher must not be used afterwards.
func (s *Searcher) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// TextSearch runs a full-text query and returns at most limit hits,
// most relevant first, one per item.
func (s *Searcher) TextSearch(ctx context.Context, query string, limit int, scope storage.Scope) ([]core.TextHit, error) {
	return s.TextSearchWithMonitor(ctx, query, limit, scope, nil)
}

// TextSearchWithMonitor is TextSearch reporting to monitor.
func (s *Searcher) TextSearchWithMonitor(ctx context.Context, query string, limit int, scope storage.Scope, monitor SearchMonitor) ([]core.TextHit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start("text", query)

	hits, err := s.index.TextSearch(ctx, query, limit, scope)
	if err != nil {
		s.logger.Error("text search failed", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterScan(len(hits))

	slices.SortStableFunc(hits, func(a, b core.TextHit) int {
		return cmp.Compare(b.Relevance, a.Relevance)
	})
	out := make([]core.TextHit, 0, min(len(hits), max(limit, 0)))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		if seen[h.ItemID] {
			continue
		}
		seen[h.ItemID] = true
		out = append(out, h)
	}
	monitor.FinishText(out)
	return out, nil
}

// VectorSearch scores every stored embedding in scope against vector and
// returns at most limit hits with similarity >= minSimilarity, best first,
// one per parent.
func (s *Searcher) VectorSearch(ctx context.Context, vector []float32, limit int, scope storage.Scope, minSimilarity float32) ([]core.VectorHit, error) {
	return s.VectorSearchWithMonitor(ctx, vector, limit, scope, minSimilarity, nil)
}

// VectorSearchWithMonitor is VectorSearch reporting to monitor.
func (s *Searcher) VectorSearchWithMonitor(ctx context.Context, vector []float32, limit int, scope storage.Scope, minSimilarity float32, monitor SearchMonitor) ([]core.VectorHit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if len(vector) == 0 {
		return nil, ErrEmptyQuery
	}
	monitor.Start("vector", fmt.Sprintf("%d dimensions", len(vector)))

	hits, scanned, err := s.score(ctx, vector, scope, minSimilarity)
	if err != nil {
		s.logger.Error("vector search failed", "err", err)
		return nil, err
	}
	monitor.AfterScan(scanned)

	slices.SortStableFunc(hits, func(a, b core.VectorHit) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	out := make([]core.VectorHit, 0, min(len(hits), max(limit, 0)))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		if seen[h.ParentID] {
			continue
		}
		seen[h.ParentID] = true
		out = append(out, h)
	}
	monitor.FinishVector(out)
	return out, nil
}

// SearchText embeds text with the configured embedder and runs VectorSearch.
func (s *Searcher) SearchText(ctx context.Context, text string, limit int, scope storage.Scope, minSimilarity float32) ([]core.VectorHit, error) {
	if s.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	vector, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", text, "err", err)
		return nil, err
	}
	return s.VectorSearch(ctx, vector, limit, scope, minSimilarity)
}

// score streams candidates from the index in batches and scores each batch on
// the pool. The first error cancels the scan.
func (s *Searcher) score(ctx context.Context, query []float32, scope storage.Scope, minSimilarity float32) ([]core.VectorHit, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queryNorm := vek32.Norm(query)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		hits     []core.VectorHit
		firstErr error
		scanned  int
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	dispatch := func(batch []storage.EmbeddingCandidate) error {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			found, err := scoreBatch(query, queryNorm, batch, minSimilarity)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			hits = append(hits, found...)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
		}
		return err
	}

	batch := make([]storage.EmbeddingCandidate, 0, s.batchSize)
	err := s.index.ScanEmbeddings(ctx, scope, func(c storage.EmbeddingCandidate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned++
		batch = append(batch, c)
		if len(batch) < s.batchSize {
			return nil
		}
		full := batch
		batch = make([]storage.EmbeddingCandidate, 0, s.batchSize)
		return dispatch(full)
	})
	if err == nil && len(batch) > 0 {
		err = dispatch(batch)
	}
	wg.Wait()

	// A scoring failure cancels ctx, so it takes precedence over the scan's context error.
	if firstErr != nil {
		return nil, scanned, firstErr
	}
	if err != nil {
		return nil, scanned, err
	}
	return hits, scanned, nil
}

// scoreBatch computes cosine similarity for each candidate. A zero norm on
// either side scores 0.
func scoreBatch(query []float32, queryNorm float32, batch []storage.EmbeddingCandidate, minSimilarity float32) ([]core.VectorHit, error) {
	var out []core.VectorHit
	for _, c := range batch {
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("%w: %s has %d dimensions, query has %d",
				ErrDimensionMismatch, c.ID, len(c.Vector), len(query))
		}
		var sim float32
		if n := vek32.Norm(c.Vector); n != 0 && queryNorm != 0 {
			sim = vek32.Dot(query, c.Vector) / (queryNorm * n)
		}
		if sim < minSimilarity {
			continue
		}
		out = append(out, core.VectorHit{
			ID:         c.ID,
			ParentID:   c.ParentID,
			Title:      c.Title,
			Content:    c.Content,
			Similarity: sim,
			Kind:       c.Kind,
		})
	}
	return out, nil
}
