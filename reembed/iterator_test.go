package reembed

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/notebase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIterator(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		records   int
		batchSize int
		wantSizes []int
	}{
		{"empty table", 0, 10, nil},
		{"single short page", 3, 10, []int{3}},
		{"exact multiple", 6, 3, []int{3, 3}},
		{"trailing partial page", 7, 3, []int{3, 3, 1}},
		{"default batch size", 5, 0, []int{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			want := seed(t, repo, core.TableNote, tt.records)

			it := NewRecordIterator(repo, core.TableNote, tt.batchSize)
			var sizes []int
			var got []string
			err := it.ForEach(ctx, func(batch []core.Record) error {
				sizes = append(sizes, len(batch))
				for _, r := range batch {
					got = append(got, r.ID())
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSizes, sizes)
			assert.ElementsMatch(t, want, got)

			n, err := it.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.records, n)
		})
	}
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, core.TableNote, 5)

	boom := errors.New("boom")
	calls := 0
	err := NewRecordIterator(repo, core.TableNote, 2).ForEach(context.Background(), func([]core.Record) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_ContextCanceled(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, core.TableNote, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRecordIterator(repo, core.TableNote, 2).ForEach(ctx, func([]core.Record) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
