package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/notebase/storage"
)

const (
	defaultSequenceBandwidth = 100

	// maxTxRetries bounds Update. Each conflict means another writer committed.
	maxTxRetries = 128

	// DefaultNamespace and DefaultDatabase address the keyspace when no option overrides them.
	DefaultNamespace = "open_notebook"
	DefaultDatabase  = "open_notebook"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
// Every key it hands out lives under the namespace/database prefix.
type Backend struct {
	db     *badger.DB
	keys   keyspace
	logger *slog.Logger

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

// Option configures a Backend.
type Option func(*backendOptions)

type backendOptions struct {
	namespace string
	database  string
	logger    *slog.Logger
}

// WithNamespace selects the namespace and database the backend addresses.
func WithNamespace(namespace, database string) Option {
	return func(o *backendOptions) {
		if namespace != "" {
			o.namespace = namespace
		}
		if database != "" {
			o.database = database
		}
	}
}

// WithLogger sets the logger used by the backend and by BadgerDB itself.
func WithLogger(logger *slog.Logger) Option {
	return func(o *backendOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool, opts ...Option) (*Backend, error) {
	o := backendOptions{
		namespace: DefaultNamespace,
		database:  DefaultDatabase,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var bopts badger.Options
	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		bopts = badger.DefaultOptions(filePath)
	}

	logger := o.logger.With("component", "badger")
	bopts.Logger = &badgerLoggerAdapter{logger: logger}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		keys:   newKeyspace(o.namespace, o.database),
		logger: logger.With("namespace", o.namespace, "database", o.database),
		seqs:   make(map[string]*badger.Sequence),
	}, nil
}

// Close releases leased sequences and closes the BadgerDB database.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db.IsClosed() {
		return nil
	}
	for name, seq := range b.seqs {
		if err := seq.Release(); err != nil {
			b.logger.Warn("failed to release sequence", "sequence", name, "error", err)
		}
	}
	clear(b.seqs)
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction; fn must commit it.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// Update runs fn in a read-write transaction, retrying it from scratch while
// the commit conflicts with another writer. fn must commit the transaction
// and must be safe to run more than once.
func (b *Backend) Update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	var err error
	for attempt := range maxTxRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = b.WithTx(fn, true)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
		time.Sleep(time.Duration(rand.Int64N(int64(attempt+1) * int64(100*time.Microsecond))))
	}
	return fmt.Errorf("%w after %d attempts", err, maxTxRetries)
}

// GetSequence returns a BadgerDB sequence for generating sequential IDs.
// Sequences are shared per name and released on Close.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq, ok := b.seqs[name]; ok {
		return seq, nil
	}
	if b.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	seq, err := b.db.GetSequence(b.keys.key(metaPrefix, "seq", name), defaultSequenceBandwidth)
	if err != nil {
		return nil, err
	}
	b.seqs[name] = seq
	return seq, nil
}

// getJSON reads key into v. Returns storage.ErrNotFound when the key is absent.
func getJSON(tx *badger.Txn, key []byte, v any) error {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(tx *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Set(key, data)
}

func exists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanPrefix calls fn for every key under prefix, passing the key suffix.
// fn must copy the value if it keeps it.
func scanPrefix(tx *badger.Txn, prefix []byte, keysOnly bool, fn func(suffix []byte, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = !keysOnly
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		if err := fn(item.Key()[len(prefix):], item); err != nil {
			return err
		}
	}
	return nil
}
