package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"homecook/videosearch/internal/domain"
)

const badgerCachePrefix = "cache:"

// BadgerCacheBackend keeps ranked responses in a local Badger directory so a
// single instance survives restarts without Redis. Entries expire through
// Badger's own TTL.
type BadgerCacheBackend struct {
	db *badger.DB
}

type BadgerCacheOptions struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string
	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool
	Logger   *slog.Logger
}

func OpenBadgerCacheBackend(opts BadgerCacheOptions) (*BadgerCacheBackend, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger cache: directory is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger.With(slog.String("component", "badger"))})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCacheBackend{db: db}, nil
}

func (b *BadgerCacheBackend) Get(_ context.Context, key string) (domain.RecipeResponse, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerCachePrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.RecipeResponse{}, false, nil
	}
	if err != nil {
		return domain.RecipeResponse{}, false, err
	}
	var resp domain.RecipeResponse
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return domain.RecipeResponse{}, false, err
	}
	return resp, true, nil
}

func (b *BadgerCacheBackend) Set(_ context.Context, key string, response domain.RecipeResponse, ttl time.Duration) error {
	data, err := msgpack.Marshal(response)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(badgerCachePrefix+key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (b *BadgerCacheBackend) Close() error {
	return b.db.Close()
}

// badgerLogger routes Badger's printf-style logging through slog. Info
// chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
