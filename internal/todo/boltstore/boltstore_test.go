package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
	"github.com/vango-dev/asyncstate/internal/todo/todotest"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "todos.db")
	s, err := Open(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore(t *testing.T) {
	s, _ := openTemp(t)
	todotest.TestStore(t, s)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todos.db")
	s, err := Open(path, "list")
	require.NoError(t, err)

	created, err := s.Create(context.Background(), todo.Todo{Title: "durable"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, "list")
	require.NoError(t, err)
	defer s.Close()

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []todo.Todo{created}, list)

	next, err := s.Create(context.Background(), todo.Todo{Title: "next"})
	require.NoError(t, err)
	assert.Equal(t, created.ID+1, next.ID)
}

func TestCorruptRecord(t *testing.T) {
	s, _ := openTemp(t)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(marshalID(4), []byte("{not json"))
	})
	require.NoError(t, err)

	_, err = s.List(context.Background())
	assert.True(t, errors.HasCode(err, errors.CodeStoreCorrupt), "got %v", err)
}

func TestCanceledContext(t *testing.T) {
	s, _ := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, todo.Todo{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIDEncodingOrders(t *testing.T) {
	for _, id := range []int64{1, 255, 256, 1 << 40} {
		assert.Equal(t, id, unmarshalID(marshalID(id)))
	}
	assert.Less(t, string(marshalID(255)), string(marshalID(256)))
}
