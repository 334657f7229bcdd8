package asyncstate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/asyncstate/pkg/metrics"
)

type todo struct {
	ID    int64
	Title string
}

func quietClient(opts Options) *Client {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts)
}

func TestClientTracker(t *testing.T) {
	c := quietClient(Options{TracerProvider: noop.NewTracerProvider()})
	tr := NewTracker[[]todo](c, "todos")

	first := tr.Fetch("all", func(context.Context) ([]todo, error) {
		return []todo{{1, "a"}}, nil
	})
	assert.Equal(t, Loading, first.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := tr.Wait(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, Success, st.Status)
	assert.Equal(t, []todo{{1, "a"}}, st.Data)

	got, ok := Match(st,
		OnSuccess(func(ts []todo) string { return ts[0].Title }),
	)
	assert.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestClientSet(t *testing.T) {
	c := quietClient(Options{TempIDPrefix: "draft-"})
	s := NewSet(c, "todos", func(t todo) int64 { return t.ID })

	id := s.Apply(todo{-1, "new"}, KindAdd)
	assert.Equal(t, TempID("draft-1"), id)
	assert.Equal(t, []todo{{-1, "new"}}, s.MergedView())
}

func TestClientMetrics(t *testing.T) {
	m := metrics.New()
	c := quietClient(Options{Metrics: m})
	require.Same(t, m, c.Metrics())

	s := NewSet(c, "todos", func(t todo) int64 { return t.ID })
	s.Reject(s.Apply(todo{1, "x"}, KindAdd))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["asyncstate_optimistic_entries_total"], "gathered %v", names)
}

func TestClientsAreIndependent(t *testing.T) {
	a := quietClient(Options{StaleTime: time.Hour})
	b := quietClient(Options{})
	ta := NewTracker[int](a, "n")
	tb := NewTracker[int](b, "n")

	ta.Fetch("k", func(context.Context) (int, error) { return 1, nil })
	assert.Equal(t, Idle, tb.State("k").Status)
}
