package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

const metadataKeyPrefix = "meta/"

// BadgerMetadata keeps msgpack-encoded metadata in a badger database.
type BadgerMetadata struct {
	db *badger.DB
}

// OpenBadgerMetadata opens the database at dir. An empty dir opens an
// in-memory database.
func OpenBadgerMetadata(dir string) (*BadgerMetadata, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	return &BadgerMetadata{db: db}, nil
}

func metadataKey(id string) []byte {
	return []byte(metadataKeyPrefix + id)
}

func (s *BadgerMetadata) Get(id string) (models.ImageMetadata, error) {
	var meta models.ImageMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metadataKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &meta)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.ImageMetadata{}, ErrMetadataNotFound
	}
	if err != nil {
		return models.ImageMetadata{}, fmt.Errorf("failed to read metadata %s: %w", id, err)
	}
	return meta, nil
}

func (s *BadgerMetadata) Set(meta models.ImageMetadata) error {
	val, err := msgpack.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata %s: %w", meta.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metadataKey(meta.ID), val)
	})
}

func (s *BadgerMetadata) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metadataKey(id))
	})
}

func (s *BadgerMetadata) Close() error {
	return s.db.Close()
}
