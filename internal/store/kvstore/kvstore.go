// Package kvstore is an embedded key-value store on badger. Records are JSON
// documents under "<table>/<id>" keys; new records get UUIDs.
package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/datamanager"
	"fetchplan-registry/internal/metadata"
)

// Config configures the badger database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Logger receives badger's own messages. Nil silences them.
	Logger *logrus.Entry
}

// Store implements datamanager.Store on badger.
type Store struct {
	name string
	db   *badger.DB
}

var _ datamanager.Store = (*Store)(nil)

// Open opens the database.
func Open(name string, cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store %s: path is required for a persistent database", name)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger.WithField("store", name))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", name, err)
	}

	return &Store{name: name, db: db}, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(cls *metadata.MetaClass, id any) []byte {
	return []byte(cls.Table + "/" + fmt.Sprint(id))
}

// Load returns the records with the given IDs.
func (s *Store) Load(ctx context.Context, cls *metadata.MetaClass, ids []any, columns []string) ([]datamanager.Record, error) {
	var out []datamanager.Record

	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := get(txn, recordKey(cls, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}

			if err != nil {
				return err
			}

			out = append(out, project(rec, columns))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cls.Name, err)
	}

	return out, nil
}

// LoadAll returns up to limit records in key order.
func (s *Store) LoadAll(ctx context.Context, cls *metadata.MetaClass, columns []string, limit int) ([]datamanager.Record, error) {
	var out []datamanager.Record

	prefix := []byte(cls.Table + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) == limit {
				break
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			var rec datamanager.Record

			if err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = decode(val)

				return err
			}); err != nil {
				return err
			}

			out = append(out, project(rec, columns))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cls.Name, err)
	}

	return out, nil
}

// Save writes records in one transaction. Updates merge the given columns
// into the stored record.
func (s *Store) Save(ctx context.Context, cls *metadata.MetaClass, records []datamanager.Record) ([]any, error) {
	ids := make([]any, len(records))

	err := s.db.Update(func(txn *badger.Txn) error {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			id, ok := rec[metadata.IDProperty]
			if !ok || id == nil {
				id = uuid.NewString()
			}

			key := recordKey(cls, id)

			stored, err := get(txn, key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				stored = datamanager.Record{}
			} else if err != nil {
				return err
			}

			for c, v := range rec {
				stored[c] = v
			}

			stored[metadata.IDProperty] = id

			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}

			if err := txn.Set(key, data); err != nil {
				return err
			}

			ids[i] = id
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", cls.Name, err)
	}

	return ids, nil
}

func get(txn *badger.Txn, key []byte) (datamanager.Record, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}

	var rec datamanager.Record

	err = item.Value(func(val []byte) error {
		rec, err = decode(val)
		return err
	})

	return rec, err
}

// decode reads a record keeping integral numbers as int64.
func decode(data []byte) (datamanager.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec datamanager.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}

	for k, v := range rec {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}

		if i, err := n.Int64(); err == nil {
			rec[k] = i
		} else if f, err := n.Float64(); err == nil {
			rec[k] = f
		}
	}

	return rec, nil
}

func project(rec datamanager.Record, columns []string) datamanager.Record {
	out := make(datamanager.Record, len(columns))
	for _, c := range columns {
		out[c] = rec[c]
	}

	return out
}
