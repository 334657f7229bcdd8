// Package todo defines the todo model and the Store the demo producers
// read from and write to.
package todo

import (
	"context"
	"sort"

	"github.com/vango-dev/asyncstate/internal/errors"
)

// Todo is one item of the demo list.
type Todo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Key identifies a todo in an optimistic set.
func Key(t Todo) int64 { return t.ID }

// ErrNotFound matches, via errors.Is, every error a Store returns for a
// missing id.
var ErrNotFound = errors.New(errors.CodeTodoNotFound)

// NotFound returns an ErrNotFound error naming id.
func NotFound(id int64) error {
	return errors.New(errors.CodeTodoNotFound).WithDetailf("id %d", id)
}

// Store persists todos. Implementations must be safe for concurrent use.
type Store interface {
	// List returns every todo ordered by ID.
	List(ctx context.Context) ([]Todo, error)

	// Create stores t under a new ID and returns the stored todo.
	Create(ctx context.Context, t Todo) (Todo, error)

	// Update replaces the todo with t.ID.
	Update(ctx context.Context, t Todo) (Todo, error)

	// Delete removes the todo with id.
	Delete(ctx context.Context, id int64) error

	// Close releases the store's resources.
	Close() error
}

// SortByID orders todos by ascending ID in place.
func SortByID(todos []Todo) {
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
}
