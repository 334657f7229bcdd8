package todo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asyncerrors "github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
	"github.com/vango-dev/asyncstate/internal/todo/todotest"
)

func TestMemoryStore(t *testing.T) {
	todotest.TestStore(t, todo.NewMemoryStore(todo.MemoryOptions{}))
}

func TestMemoryStoreSeed(t *testing.T) {
	s := todo.NewMemoryStore(todo.MemoryOptions{},
		todo.Todo{ID: 3, Title: "c"},
		todo.Todo{ID: 1, Title: "a"},
	)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []todo.Todo{{ID: 1, Title: "a"}, {ID: 3, Title: "c"}}, list)

	created, err := s.Create(context.Background(), todo.Todo{Title: "d"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), created.ID)
}

func TestMemoryStoreFailureRate(t *testing.T) {
	s := todo.NewMemoryStore(todo.MemoryOptions{FailureRate: 1, Seed: 1})
	_, err := s.List(context.Background())
	require.Error(t, err)
	assert.True(t, asyncerrors.HasCode(err, asyncerrors.CodeStoreUnavailable))
}

func TestMemoryStoreLatencyHonorsContext(t *testing.T) {
	s := todo.NewMemoryStore(todo.MemoryOptions{Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.List(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := todo.NotFound(7)
	assert.True(t, errors.Is(err, todo.ErrNotFound))
	var e *asyncerrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "E200: Todo not found (id 7)", e.FormatCompact())
}

func TestKey(t *testing.T) {
	assert.Equal(t, int64(5), todo.Key(todo.Todo{ID: 5}))
}
