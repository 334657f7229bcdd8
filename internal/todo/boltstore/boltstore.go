// Package boltstore implements todo.Store on a bbolt database file.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
)

// DefaultBucket is used when Open is given an empty bucket name.
const DefaultBucket = "todos"

// Store keeps one JSON value per todo, keyed by the big-endian ID. IDs
// come from the bucket sequence.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open opens (creating if needed) the database at path.
func Open(path, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.New(errors.CodeStoreUnavailable).
			WithDetailf("open %s", path).
			Wrap(err)
	}
	s := &Store{db: db, bucket: []byte(bucket)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.New(errors.CodeStoreUnavailable).Wrap(err)
	}
	return s, nil
}

// List implements todo.Store.
func (s *Store) List(ctx context.Context) ([]todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []todo.Todo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			t, err := decode(k, v)
			if err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []todo.Todo{}
	}
	return out, nil
}

// Create implements todo.Store.
func (s *Store) Create(ctx context.Context, t todo.Todo) (todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return todo.Todo{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		t.ID = int64(seq)
		return put(b, t)
	})
	if err != nil {
		return todo.Todo{}, err
	}
	return t, nil
}

// Update implements todo.Store.
func (s *Store) Update(ctx context.Context, t todo.Todo) (todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return todo.Todo{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get(marshalID(t.ID)) == nil {
			return todo.NotFound(t.ID)
		}
		return put(b, t)
	})
	if err != nil {
		return todo.Todo{}, err
	}
	return t, nil
}

// Delete implements todo.Store.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		key := marshalID(id)
		if b.Get(key) == nil {
			return todo.NotFound(id)
		}
		return b.Delete(key)
	})
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func put(b *bolt.Bucket, t todo.Todo) error {
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put(marshalID(t.ID), v)
}

func decode(k, v []byte) (todo.Todo, error) {
	var t todo.Todo
	if err := json.Unmarshal(v, &t); err != nil {
		return todo.Todo{}, errors.New(errors.CodeStoreCorrupt).
			WithDetailf("key %d", unmarshalID(k)).
			Wrap(err)
	}
	return t, nil
}

func marshalID(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func unmarshalID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
