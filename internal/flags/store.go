package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/types"

	badger "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "flag:"

// Store is a ControlFlagStore backed by Badger. Badger transactions make
// concurrent Get/Set from phases and HTTP handlers safe.
type Store struct {
	db  *badger.DB
	own bool
}

var _ interfaces.ControlFlagStore = (*Store)(nil)

type OpenOptions struct {
	Path     string
	InMemory bool
}

func Open(opts OpenOptions) (*Store, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) != "":
		bopts = badger.DefaultOptions(opts.Path)
	default:
		return nil, errors.New("flags: path is required")
	}
	db, err := badger.Open(bopts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}
	return &Store{db: db, own: true}, nil
}

// New wraps an already opened database; Close will not close it.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database so other stores can share it.
func (s *Store) DB() *badger.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.own {
		return nil
	}
	return s.db.Close()
}

func (s *Store) lookup(name string) (types.ControlFlag, bool, error) {
	var flag types.ControlFlag
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &flag)
		})
	})
	return flag, found, err
}

// Get returns the flag value, or def when absent or unreadable.
func (s *Store) Get(ctx context.Context, name, def string) string {
	flag, found, err := s.lookup(name)
	if err != nil {
		logger.Warn(ctx, "Flag read failed, using default", "flag", name, "default", def, "error", err)
		return def
	}
	if !found {
		return def
	}
	return flag.Value
}

func (s *Store) Set(ctx context.Context, name, value, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("flags: name is empty")
	}
	if description == "" {
		if prev, found, err := s.lookup(name); err == nil && found {
			description = prev.Description
		}
	}
	b, err := json.Marshal(types.ControlFlag{
		Name:        name,
		Value:       value,
		Description: description,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+name), b)
	}); err != nil {
		return fmt.Errorf("set flag %s: %w", name, err)
	}
	logger.Debug(ctx, "Flag updated", "flag", name, "value", value)
	return nil
}

func (s *Store) GetBool(ctx context.Context, name string, def bool) bool {
	raw := s.Get(ctx, name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func (s *Store) GetInt(ctx context.Context, name string, def int) int {
	raw := s.Get(ctx, name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func (s *Store) GetFloat(ctx context.Context, name string, def float64) float64 {
	raw := s.Get(ctx, name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

func (s *Store) All(ctx context.Context) ([]types.ControlFlag, error) {
	var out []types.ControlFlag
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var flag types.ControlFlag
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &flag)
			}); err != nil {
				return err
			}
			out = append(out, flag)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	return out, nil
}

// Helpers for the common typed writes.

func SetBool(ctx context.Context, s interfaces.ControlFlagStore, name string, v bool) error {
	return s.Set(ctx, name, strconv.FormatBool(v), "")
}

func SetFloat(ctx context.Context, s interfaces.ControlFlagStore, name string, v float64) error {
	return s.Set(ctx, name, strconv.FormatFloat(v, 'f', -1, 64), "")
}

func SetInt(ctx context.Context, s interfaces.ControlFlagStore, name string, v int) error {
	return s.Set(ctx, name, strconv.Itoa(v), "")
}
