// Package panel is a terminal view of a request tracker and an
// optimistic set over the todo store.
package panel

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/todo"
)

// Key is the tracker key the panel fetches.
const Key = "todos"

// Options configures the panel.
type Options struct {
	Context context.Context
	Store   todo.Store
	Tracker *asyncstate.Tracker[[]todo.Todo]
	Set     *asyncstate.Set[todo.Todo, int64]
}

// stateMsg carries a new tracker state.
type stateMsg asyncstate.State[[]todo.Todo]

// viewMsg carries a new merged view and the ids still pending.
type viewMsg struct {
	items   []todo.Todo
	pending map[int64]bool
}

// Model is the Bubble Tea model of the panel.
type Model struct {
	ctx     context.Context
	store   todo.Store
	tracker *asyncstate.Tracker[[]todo.Todo]
	set     *asyncstate.Set[todo.Todo, int64]

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	state   asyncstate.State[[]todo.Todo]
	items   []todo.Todo
	pending map[int64]bool

	// nextDraft is the (negative) key of the next optimistic add.
	nextDraft int64
	added     int
	width     int
}

// New creates the panel model. Successful fetches become the set's base.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	opts.Tracker.OnSuccess(func(_ string, todos []todo.Todo) {
		opts.Set.SetBase(todos)
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	return Model{
		ctx:       ctx,
		store:     opts.Store,
		tracker:   opts.Tracker,
		set:       opts.Set,
		keys:      defaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
		state:     opts.Tracker.State(Key),
		items:     opts.Set.MergedView(),
		pending:   map[int64]bool{},
		nextDraft: -1,
	}
}

// Observe forwards tracker and set changes to send, typically
// (*tea.Program).Send. The returned function stops forwarding.
func (m Model) Observe(send func(tea.Msg)) (stop func()) {
	stopState := m.tracker.Subscribe(Key, func(st asyncstate.State[[]todo.Todo]) {
		send(stateMsg(st))
	})
	stopView := m.set.Subscribe(func(items []todo.Todo) {
		send(newViewMsg(items, m.set.Pending()))
	})
	return func() {
		stopState()
		stopView()
	}
}

func newViewMsg(items []todo.Todo, entries []asyncstate.Entry[todo.Todo]) viewMsg {
	pending := make(map[int64]bool, len(entries))
	for _, e := range entries {
		pending[e.Payload.ID] = true
	}
	return viewMsg{items: items, pending: pending}
}

func (m Model) produce(ctx context.Context) ([]todo.Todo, error) {
	return m.store.List(ctx)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m Model) fetch() tea.Msg {
	return stateMsg(m.tracker.Fetch(Key, m.produce))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.state = asyncstate.State[[]todo.Todo](msg)
		return m, nil

	case viewMsg:
		m.items = msg.items
		m.pending = msg.pending
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Refetch):
		m.state = m.tracker.Refetch(Key)
		if m.state.IsIdle() {
			return m, m.fetch
		}

	case key.Matches(msg, m.keys.Reset):
		m.tracker.Reset(Key)
		m.state = m.tracker.State(Key)

	case key.Matches(msg, m.keys.Add):
		m.added++
		draft := todo.Todo{ID: m.nextDraft, Title: fmt.Sprintf("New todo #%d", m.added)}
		m.nextDraft--
		m.set.Mutate(m.ctx, draft, asyncstate.KindAdd, func(ctx context.Context) (todo.Todo, error) {
			return m.store.Create(ctx, todo.Todo{Title: draft.Title})
		})

	case key.Matches(msg, m.keys.Toggle):
		if first, ok := m.first(); ok {
			first.Done = !first.Done
			m.set.Mutate(m.ctx, first, asyncstate.KindUpdate, func(ctx context.Context) (todo.Todo, error) {
				return m.store.Update(ctx, first)
			})
		}

	case key.Matches(msg, m.keys.Delete):
		if last, ok := m.last(); ok {
			m.set.Mutate(m.ctx, last, asyncstate.KindRemove, func(ctx context.Context) (todo.Todo, error) {
				return last, m.store.Delete(ctx, last.ID)
			})
		}
	}
	return m, nil
}

// first returns the first confirmed todo of the merged view.
func (m Model) first() (todo.Todo, bool) {
	for _, t := range m.set.MergedView() {
		if t.ID > 0 {
			return t, true
		}
	}
	return todo.Todo{}, false
}

// last returns the last confirmed todo of the merged view.
func (m Model) last() (todo.Todo, bool) {
	items := m.set.MergedView()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ID > 0 {
			return items[i], true
		}
	}
	return todo.Todo{}, false
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Todos"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	if m.state.IsError() {
		b.WriteString(errorStyle.Render("✗ " + m.state.Err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.items) == 0 {
		b.WriteString(statusStyle.Render("  (no todos)"))
		b.WriteString("\n")
	}
	for _, t := range m.items {
		b.WriteString(m.renderTodo(t))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return frameStyle.Render(b.String())
}

func (m Model) statusLine() string {
	text, _ := asyncstate.Match(m.state,
		asyncstate.OnRefetching[[]todo.Todo](func([]todo.Todo) string {
			return m.spinner.View() + " " + badgeStyle.Render("refreshing")
		}),
		asyncstate.OnLoading[[]todo.Todo](func() string {
			return m.spinner.View() + statusStyle.Render(" loading…")
		}),
		asyncstate.OnError[[]todo.Todo](func(error) string {
			return errorStyle.Render("error")
		}),
		asyncstate.OnSuccess(func(todos []todo.Todo) string {
			return statusStyle.Render(fmt.Sprintf("%d loaded", len(todos)))
		}),
		asyncstate.OnIdle[[]todo.Todo](func() string {
			return statusStyle.Render("idle, press r to load")
		}),
	)
	return text
}

func (m Model) renderTodo(t todo.Todo) string {
	box := "[ ]"
	if t.Done {
		box = "[x]"
	}
	line := fmt.Sprintf("%s %s", box, t.Title)
	switch {
	case m.pending[t.ID]:
		return "  " + pendingStyle.Render(line+"  (saving)")
	case t.Done:
		return "  " + doneStyle.Render(line)
	default:
		return "  " + line
	}
}
