package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUsesTimeOrderedKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	a, err := s.Repo.Create(ctx, core.TableNotebook, core.Record{"name": "a"})
	require.NoError(t, err)
	b, err := s.Repo.Create(ctx, core.TableNotebook, core.Record{"name": "b"})
	require.NoError(t, err)

	ka, err := core.ParseID(a.ID())
	require.NoError(t, err)
	kb, err := core.ParseID(b.ID())
	require.NoError(t, err)

	u, err := uuid.Parse(ka.Key)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), u.Version())
	assert.Less(t, ka.Key, kb.Key)
}

func TestChildMustReferenceExistingParent(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	_, err = s.Repo.Create(ctx, core.TableSourceInsight, core.Record{"source": "source:missing", "content": "x"})
	assert.ErrorIs(t, err, storage.ErrConstraintViolation)

	_, err = s.Repo.Create(ctx, core.TableSourceInsight, core.Record{"content": "orphan"})
	assert.ErrorIs(t, err, storage.ErrConstraintViolation)
}

func TestAddRelationRequiresEndpoints(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	nb, err := s.Repo.Create(ctx, core.TableNotebook, core.Record{"name": "nb"})
	require.NoError(t, err)

	err = s.Repo.AddRelation(ctx, "source:ghost", core.RelationReference, nb.ID())
	assert.ErrorIs(t, err, storage.ErrConstraintViolation)
}

func TestRenamingReleasesUniqueValue(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	tr, err := s.Repo.Create(ctx, core.TableTransformation, core.Record{"name": "summarize", "prompt": "p"})
	require.NoError(t, err)
	_, err = s.Repo.Update(ctx, core.TableTransformation, tr.ID(), core.Record{"name": "condense"})
	require.NoError(t, err)

	_, err = s.Repo.Create(ctx, core.TableTransformation, core.Record{"name": "summarize", "prompt": "q"})
	require.NoError(t, err)
	_, err = s.Repo.Create(ctx, core.TableTransformation, core.Record{"name": "condense", "prompt": "r"})
	assert.ErrorIs(t, err, storage.ErrConstraintViolation)

	require.NoError(t, s.Repo.Delete(ctx, tr.ID()))
	_, err = s.Repo.Create(ctx, core.TableTransformation, core.Record{"name": "condense", "prompt": "r"})
	assert.NoError(t, err)
}

func TestDeleteRemovesDerivedKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	nb, err := s.Repo.Create(ctx, core.TableNotebook, core.Record{"name": "nb"})
	require.NoError(t, err)
	src, err := s.Repo.Create(ctx, core.TableSource, core.Record{"title": "t", "full_text": "body"})
	require.NoError(t, err)
	_, err = s.Repo.Create(ctx, core.TableSourceEmbedding, core.Record{
		"source": src.ID(), "chunk_order": 0, "content": "chunk", "embedding": []float32{1, 2},
	})
	require.NoError(t, err)
	require.NoError(t, s.Repo.AddRelation(ctx, src.ID(), core.RelationReference, nb.ID()))

	require.NoError(t, s.Repo.Delete(ctx, src.ID()))

	keys := s.Backend.keys
	err = s.Backend.WithTx(func(tx *badger.Txn) error {
		for _, family := range []string{recordPrefix, vectorPrefix, edgePrefix, reverseEdgePrefix, childPrefix, termPrefix, docLenPrefix} {
			n := 0
			err := scanPrefix(tx, keys.prefix(family), true, func(suffix []byte, _ *badger.Item) error {
				if family == recordPrefix && string(suffix) == core.TableNotebook+sep+mustKey(t, nb.ID()) {
					return nil
				}
				n++
				return nil
			})
			if err != nil {
				return err
			}
			assert.Zero(t, n, family)
		}
		return nil
	}, false)
	require.NoError(t, err)

	nbs, err := s.Repo.ListWithCounts(ctx, core.TableNotebook, []storage.CountSpec{{Alias: "sources", Relation: core.RelationReference}}, storage.ListQuery{})
	require.NoError(t, err)
	require.Len(t, nbs, 1)
	assert.Equal(t, int64(0), nbs[0]["sources"])
}

func mustKey(t *testing.T, id string) string {
	t.Helper()
	rid, err := core.ParseID(id)
	require.NoError(t, err)
	return rid.Key
}
