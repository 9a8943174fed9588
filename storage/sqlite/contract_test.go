package sqlite

import (
	"context"
	"testing"

	"github.com/poiesic/notebase/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func openTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := OpenStores(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { stores.Backend.Close() })
	return stores
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Engine {
		s := openTestStores(t)
		return storagetest.Engine{Repo: s.Repo, Index: s.Index, Jobs: s.Jobs}
	})
}
