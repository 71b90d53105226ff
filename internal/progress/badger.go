package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcube-trader/internal/interfaces"

	badger "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "progress:"

// BadgerStore keeps progress in Badger using native entry TTLs, so a run's
// progress survives a process restart until it expires.
type BadgerStore struct {
	db *badger.DB
}

var _ interfaces.ProgressStore = (*BadgerStore)(nil)

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("progress set %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("progress get %s: %w", key, err)
	}
	return out, true, nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}
