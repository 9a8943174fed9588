package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notebase/storage"
)

// loadVector reads a packed embedding. A missing key yields nil; an empty
// stored vector yields an empty, non-nil slice.
func loadVector(tx *badger.Txn, key []byte) ([]float32, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vectorValue(item)
}

func vectorValue(item *badger.Item) ([]float32, error) {
	var vec []float32
	err := item.Value(func(val []byte) error {
		var err error
		vec, err = storage.DecodeFloat32s(val)
		return err
	})
	return vec, err
}
