package panel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/todo"
)

var seed = []todo.Todo{{ID: 1, Title: "alpha"}, {ID: 2, Title: "beta"}}

func newModel(t *testing.T, opts ...todo.MemoryOptions) Model {
	t.Helper()
	var mo todo.MemoryOptions
	if len(opts) > 0 {
		mo = opts[0]
	}
	c := asyncstate.New(asyncstate.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return New(Options{
		Store:   todo.NewMemoryStore(mo, seed...),
		Tracker: asyncstate.NewTracker[[]todo.Todo](c, Key),
		Set:     asyncstate.NewSet(c, Key, todo.Key),
	})
}

// inbox collects messages sent by Observe.
type inbox struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (in *inbox) send(msg tea.Msg) {
	in.mu.Lock()
	in.msgs = append(in.msgs, msg)
	in.mu.Unlock()
}

// drain feeds every collected message to m.
func (in *inbox) drain(m Model) Model {
	in.mu.Lock()
	msgs := in.msgs
	in.msgs = nil
	in.mu.Unlock()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return next.(Model), cmd
}

func settle(t *testing.T, m Model) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.tracker.Wait(ctx, Key)
	require.NoError(t, err)
	require.NoError(t, m.set.Wait(ctx))
}

func TestFetchAndRender(t *testing.T) {
	m := newModel(t)
	in := &inbox{}
	stop := m.Observe(in.send)
	defer stop()

	assert.Contains(t, m.View(), "idle")

	next, _ := m.Update(m.fetch())
	m = next.(Model)
	assert.Contains(t, m.View(), "loading")

	settle(t, m)
	m = in.drain(m)

	view := m.View()
	assert.Contains(t, view, "2 loaded")
	assert.Contains(t, view, "[ ] alpha")
	assert.Contains(t, view, "[ ] beta")
}

func TestOptimisticKeys(t *testing.T) {
	m := newModel(t, todo.MemoryOptions{Latency: 50 * time.Millisecond})
	in := &inbox{}
	defer m.Observe(in.send)()

	m.Update(m.fetch())
	settle(t, m)
	m = in.drain(m)

	m, _ = press(t, m, "a")
	m = in.drain(m)
	assert.Contains(t, m.View(), "New todo #1  (saving)")

	settle(t, m)
	m = in.drain(m)
	assert.NotContains(t, m.View(), "(saving)")
	assert.Len(t, m.set.MergedView(), 3)

	m, _ = press(t, m, "t")
	settle(t, m)
	m = in.drain(m)
	assert.Contains(t, m.View(), "[x] alpha")
	assert.NotContains(t, m.View(), "(saving)")

	m, _ = press(t, m, "d")
	settle(t, m)
	m = in.drain(m)
	assert.NotContains(t, m.View(), "New todo #1")
	assert.Len(t, m.set.MergedView(), 2)
}

func TestRefetchAndReset(t *testing.T) {
	m := newModel(t)
	defer m.Observe(func(tea.Msg) {})()

	// Refetch before any fetch falls back to a fetch.
	m, cmd := press(t, m, "r")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	settle(t, m)

	m, cmd = press(t, m, "r")
	assert.Nil(t, cmd)
	assert.True(t, m.state.IsRefetching)
	assert.Contains(t, m.View(), "refreshing")
	settle(t, m)

	m, _ = press(t, m, "x")
	assert.True(t, m.state.IsIdle())
}

func TestErrorLine(t *testing.T) {
	m := newModel(t)
	next, _ := m.Update(stateMsg(asyncstate.State[[]todo.Todo]{
		Status: asyncstate.Error,
		Err:    errors.New("network down"),
	}))
	view := next.(Model).View()
	assert.Contains(t, view, "network down")
	assert.Contains(t, view, "error")
}

func TestHelpAndQuit(t *testing.T) {
	m := newModel(t)
	assert.NotContains(t, m.View(), "toggle first")

	m, _ = press(t, m, "?")
	assert.Contains(t, m.View(), "toggle first")

	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestToggleWithoutTodosIsNoop(t *testing.T) {
	m := newModel(t)
	m, _ = press(t, m, "t")
	m, _ = press(t, m, "d")
	assert.Empty(t, m.set.Pending())
}
