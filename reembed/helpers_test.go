package reembed

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/poiesic/notebase/storage"
	"github.com/poiesic/notebase/storage/badger"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) storage.Repository {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Backend.Close() })
	return stores.Repo
}

func seed(t *testing.T, repo storage.Repository, table string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := range n {
		data := core.Record{"content": fmt.Sprintf("content %d", i)}
		switch table {
		case core.TableSource:
			data = core.Record{"title": fmt.Sprintf("source %d", i), "full_text": fmt.Sprintf("text %d", i)}
		case core.TableSourceInsight:
			parent, err := repo.Create(ctx, core.TableSource, core.Record{"title": "parent"})
			require.NoError(t, err)
			data["source"] = parent.ID()
			data["insight_type"] = "summary"
		}
		rec, err := repo.Create(ctx, table, data)
		require.NoError(t, err)
		ids[i] = rec.ID()
	}
	return ids
}

// fakeExecutor records calls and returns outcomes from a per-id script.
type fakeExecutor struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[string][]string
	errs     map[string][]error
	fallback string
}

var _ executor.Executor = (*fakeExecutor)(nil)

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		calls:    map[string]int{},
		outcomes: map[string][]string{},
		errs:     map[string][]error{},
		fallback: executor.OutcomeDirect,
	}
}

func (f *fakeExecutor) embed(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[id]
	f.calls[id]++
	if errs := f.errs[id]; n < len(errs) && errs[n] != nil {
		return "", errs[n]
	}
	if outs := f.outcomes[id]; n < len(outs) {
		return outs[n], nil
	}
	return f.fallback, nil
}

func (f *fakeExecutor) EmbedNote(ctx context.Context, id string) (string, error) {
	return f.embed(ctx, id)
}

func (f *fakeExecutor) EmbedSource(ctx context.Context, id string) (string, error) {
	return f.embed(ctx, id)
}

func (f *fakeExecutor) EmbedInsight(ctx context.Context, id string) (string, error) {
	return f.embed(ctx, id)
}

func (f *fakeExecutor) EmbedInsightContent(context.Context, string) ([]float32, error) {
	return nil, nil
}

func (f *fakeExecutor) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}
