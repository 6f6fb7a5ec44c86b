package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"semear/internal/wallet"
)

const receiptPrefix = "receipt:"

// LevelDB keeps receipts in a local LevelDB directory, one JSON value per key.
type LevelDB struct {
	db *leveldb.DB
	// serializes the existence check and write in Put
	mu sync.Mutex
}

// OpenLevelDB opens or creates the database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open wallet db %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func key(id string) []byte {
	return []byte(receiptPrefix + id)
}

func (s *LevelDB) Put(ctx context.Context, r wallet.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.db.Has(key(r.ID), nil)
	if err != nil {
		return fmt.Errorf("check receipt: %w", err)
	}
	if exists {
		return wallet.ErrAlreadySaved
	}
	if err := s.db.Put(key(r.ID), raw, nil); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

func (s *LevelDB) Get(ctx context.Context, id string) (wallet.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return wallet.Receipt{}, err
	}
	raw, err := s.db.Get(key(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return wallet.Receipt{}, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.Receipt{}, fmt.Errorf("read receipt: %w", err)
	}
	return decode(raw)
}

func (s *LevelDB) List(ctx context.Context) ([]wallet.Receipt, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(receiptPrefix)), nil)
	defer iter.Release()

	var out []wallet.Receipt
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := decode(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *LevelDB) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.db.Has(key(id), nil)
	if err != nil {
		return fmt.Errorf("check receipt: %w", err)
	}
	if !exists {
		return wallet.ErrNotFound
	}
	return s.db.Delete(key(id), nil)
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}

func decode(raw []byte) (wallet.Receipt, error) {
	var r wallet.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return wallet.Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return r, nil
}
