package todo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/vango-dev/asyncstate/internal/errors"
)

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	// Latency is added to every call.
	Latency time.Duration

	// FailureRate is the probability in [0, 1] that a call fails with
	// CodeStoreUnavailable.
	FailureRate float64

	// Seed seeds the failure generator. Zero picks a time-based seed.
	Seed int64
}

// MemoryStore keeps todos in process and simulates a slow, unreliable
// network.
type MemoryStore struct {
	mu     sync.Mutex
	todos  map[int64]Todo
	nextID int64

	opts MemoryOptions
	rng  *rand.Rand
}

// NewMemoryStore creates a MemoryStore holding seed.
func NewMemoryStore(opts MemoryOptions, seed ...Todo) *MemoryStore {
	s := opts.Seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	m := &MemoryStore{
		todos: make(map[int64]Todo, len(seed)),
		opts:  opts,
		rng:   rand.New(rand.NewSource(s)),
	}
	for _, t := range seed {
		m.todos[t.ID] = t
		if t.ID > m.nextID {
			m.nextID = t.ID
		}
	}
	return m
}

// simulate waits for the configured latency and rolls for a failure.
func (m *MemoryStore) simulate(ctx context.Context) error {
	if m.opts.Latency > 0 {
		timer := time.NewTimer(m.opts.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	if m.opts.FailureRate > 0 {
		m.mu.Lock()
		fail := m.rng.Float64() < m.opts.FailureRate
		m.mu.Unlock()
		if fail {
			return errors.New(errors.CodeStoreUnavailable).WithDetail("simulated network failure")
		}
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context) ([]Todo, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]Todo, 0, len(m.todos))
	for _, t := range m.todos {
		out = append(out, t)
	}
	m.mu.Unlock()

	SortByID(out)
	return out, nil
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, t Todo) (Todo, error) {
	if err := m.simulate(ctx); err != nil {
		return Todo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.todos[t.ID] = t
	return t, nil
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, t Todo) (Todo, error) {
	if err := m.simulate(ctx); err != nil {
		return Todo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[t.ID]; !ok {
		return Todo{}, NotFound(t.ID)
	}
	m.todos[t.ID] = t
	return t, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[id]; !ok {
		return NotFound(id)
	}
	delete(m.todos, id)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
