// Package todotest keeps a test suite run against every todo.Store.
package todotest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/asyncstate/internal/todo"
)

// TestStore exercises s, which must start empty.
func TestStore(t *testing.T, s todo.Store) {
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	a, err := s.Create(ctx, todo.Todo{Title: "write docs"})
	require.NoError(t, err)
	b, err := s.Create(ctx, todo.Todo{Title: "ship", Done: true})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Greater(t, b.ID, a.ID, "ids must increase")
	assert.Equal(t, "ship", b.Title)
	assert.True(t, b.Done)

	a.Done = true
	updated, err := s.Update(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a, updated)

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []todo.Todo{a, b}, list)

	require.NoError(t, s.Delete(ctx, a.ID))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []todo.Todo{b}, list)

	err = s.Delete(ctx, a.ID)
	assert.True(t, errors.Is(err, todo.ErrNotFound), "Delete of missing id: %v", err)

	_, err = s.Update(ctx, todo.Todo{ID: 9999, Title: "ghost"})
	assert.True(t, errors.Is(err, todo.ErrNotFound), "Update of missing id: %v", err)

	c, err := s.Create(ctx, todo.Todo{Title: "after delete"})
	require.NoError(t, err)
	assert.Greater(t, c.ID, b.ID, "ids must not be reused")
}
