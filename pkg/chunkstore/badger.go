package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/cerca/pkg/types"
)

const chunkKeyPrefix = "chunk:"

// BadgerConfig holds settings for the embedded chunk store.
type BadgerConfig struct {
	// Path is the directory for the Badger files. Ignored when InMemory
	// is set.
	Path string

	// InMemory opens the store without disk persistence. Used by tests.
	InMemory bool

	// Logger receives Badger's internal log output. When nil, internal
	// logging is disabled.
	Logger *slog.Logger
}

// BadgerStore is an embedded chunk store backed by Badger. Chunks are stored
// as JSON values under a prefixed key so the keyspace can be shared with
// other ingestion artifacts.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger-backed chunk store.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, &types.ConfigurationError{Field: "chunkstore.path", Reason: "path required for persistent store"}
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the chunk with the given id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*types.TextChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chunk *types.TextChunk
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			chunk = &types.TextChunk{}
			return json.Unmarshal(val, chunk)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("chunk %q: %w", id, ErrChunkNotFound)
	}
	if err != nil {
		return nil, &types.TransientStoreError{Op: "chunk_get", Err: err}
	}
	return chunk, nil
}

// GetMany returns the chunks for the given ids in input order, skipping
// missing ids.
func (s *BadgerStore) GetMany(ctx context.Context, ids []string) ([]*types.TextChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunks := make([]*types.TextChunk, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(chunkKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			chunk := &types.TextChunk{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, chunk)
			}); err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, &types.TransientStoreError{Op: "chunk_get_many", Err: err}
	}
	return chunks, nil
}

// Put stores chunks, overwriting existing ids.
func (s *BadgerStore) Put(ctx context.Context, chunks ...*types.TextChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("invalid chunk %q: %w", chunk.ID, err)
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("failed to encode chunk %q: %w", chunk.ID, err)
		}
		if err := wb.Set(chunkKey(chunk.ID), data); err != nil {
			return fmt.Errorf("failed to stage chunk %q: %w", chunk.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return &types.TransientStoreError{Op: "chunk_put", Err: err}
	}
	return nil
}

// Close shuts down the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func chunkKey(id string) []byte {
	return []byte(chunkKeyPrefix + id)
}

// badgerLogger adapts slog to Badger's internal logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
