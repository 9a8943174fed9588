package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/notebase/ai"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/time/rate"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 150
)

// Direct runs embedding synchronously.
// Provider failures are logged and reported as OutcomeFailed; repository
// failures are returned.
type Direct struct {
	repo     storage.Repository
	embedder ai.Embedder
	splitter textsplitter.RecursiveCharacter
	limiter  *rate.Limiter
	reuse    bool
	logger   *slog.Logger
}

var _ Executor = (*Direct)(nil)

// DirectOption configures a Direct executor.
type DirectOption func(*Direct) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DirectOption {
	return func(d *Direct) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// WithChunking sets the splitter's chunk size and overlap in characters.
func WithChunking(size, overlap int) DirectOption {
	return func(d *Direct) error {
		if size < 1 || overlap < 0 || overlap >= size {
			return fmt.Errorf("invalid chunking: size %d, overlap %d", size, overlap)
		}
		d.splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		)
		return nil
	}
}

// WithRateLimit throttles embedding calls to rps requests per second with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) DirectOption {
	return func(d *Direct) error {
		if rps <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		d.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		return nil
	}
}

// WithChunkReuse controls whether EmbedSource keeps vectors of unchanged chunks.
// Default is true. Disable it when the embedding model has changed.
func WithChunkReuse(reuse bool) DirectOption {
	return func(d *Direct) error {
		d.reuse = reuse
		return nil
	}
}

// NewDirect creates a synchronous executor.
func NewDirect(repo storage.Repository, embedder ai.Embedder, opts ...DirectOption) (*Direct, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	d := &Direct{
		repo:     repo,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(DefaultChunkSize),
			textsplitter.WithChunkOverlap(DefaultChunkOverlap),
		),
		limiter: rate.NewLimiter(rate.Inf, 0),
		reuse:   true,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.logger = d.logger.With("component", "executor", "strategy", "direct")
	return d, nil
}

// EmbedNote embeds a note's content, mean-pooling over chunks when it is long.
func (d *Direct) EmbedNote(ctx context.Context, noteID string) (string, error) {
	return d.embedRecord(ctx, core.TableNote, noteID)
}

// EmbedInsight embeds a source insight's content.
func (d *Direct) EmbedInsight(ctx context.Context, insightID string) (string, error) {
	return d.embedRecord(ctx, core.TableSourceInsight, insightID)
}

func (d *Direct) embedRecord(ctx context.Context, table, id string) (string, error) {
	rec, err := d.repo.Get(ctx, table, id)
	if err != nil {
		return "", err
	}
	content := rec.String("content")
	if strings.TrimSpace(content) == "" {
		d.logger.Warn("nothing to embed", "id", id)
		return OutcomeSkipped, nil
	}

	vector, err := d.embedText(ctx, content)
	if err != nil {
		d.logger.Warn("failed to embed", "id", id, "err", err)
		return OutcomeFailed, nil
	}
	if _, err := d.repo.Update(ctx, table, id, core.Record{core.FieldEmbedding: vector}); err != nil {
		return "", err
	}
	d.logger.Debug("embedded", "id", id, "dimensions", len(vector))
	return OutcomeDirect, nil
}

// EmbedInsightContent embeds text directly. Provider failures yield nil.
func (d *Direct) EmbedInsightContent(ctx context.Context, content string) ([]float32, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	vector, err := d.embedText(ctx, content)
	if err != nil {
		d.logger.Warn("failed to embed insight content", "err", err)
		return nil, nil
	}
	return vector, nil
}

// EmbedSource replaces a source's chunk embeddings. Chunks whose content hash
// matches an existing chunk keep its vector without calling the provider.
// The old chunks are swapped for the new ones in a single transaction, once
// every new embedding is in hand.
func (d *Direct) EmbedSource(ctx context.Context, sourceID string) (string, error) {
	source, err := d.repo.Get(ctx, core.TableSource, sourceID)
	if err != nil {
		return "", err
	}
	fullText := source.String("full_text")
	if strings.TrimSpace(fullText) == "" {
		d.logger.Warn("source has no text to embed", "id", sourceID)
		return OutcomeSkipped, nil
	}

	existing, err := d.repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{
		Filters: map[string]any{"source": sourceID},
	})
	if err != nil {
		return "", err
	}
	known := make(map[string][]float32, len(existing))
	for _, rec := range existing {
		if v := rec.Embedding(core.FieldEmbedding); d.reuse && len(v) > 0 {
			known[rec.String("content_hash")] = v
		}
	}

	chunks, err := d.split(fullText)
	if err != nil {
		d.logger.Warn("failed to split source", "id", sourceID, "err", err)
		return OutcomeFailed, nil
	}

	hashes := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	var missing []int
	for i, chunk := range chunks {
		hashes[i] = core.ContentHash(chunk)
		if v, ok := known[hashes[i]]; ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = chunks[i]
		}
		embedded, err := d.embed(ctx, texts)
		if err != nil {
			d.logger.Error("failed to embed source", "id", sourceID, "err", err)
			return OutcomeFailed, nil
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
		}
	}

	rows := make([]core.Record, len(chunks))
	for i, chunk := range chunks {
		rows[i] = core.Record{
			"chunk_order":       i,
			"content":           chunk,
			"content_hash":      hashes[i],
			core.FieldEmbedding: vectors[i],
		}
	}
	if err := d.repo.ReplaceChildren(ctx, core.TableSourceEmbedding, sourceID, rows); err != nil {
		return "", err
	}

	d.logger.Info("embedded source", "id", sourceID,
		"chunks", len(chunks), "reused", len(chunks)-len(missing))
	return OutcomeDirect, nil
}

func (d *Direct) split(text string) ([]string, error) {
	chunks, err := d.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// embedText embeds text as one vector. Text longer than one chunk is split,
// embedded per chunk, mean-pooled and normalized.
func (d *Direct) embedText(ctx context.Context, text string) ([]float32, error) {
	chunks, err := d.split(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) <= 1 {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return d.embedder.EmbedText(ctx, text)
	}
	vectors, err := d.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return core.NormalizeVector(core.MeanPool(vectors)), nil
}

func (d *Direct) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vectors, err := d.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
