package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	asyncerrors "github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/pkg/features/optimistic"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestResourceHooks(t *testing.T) {
	c := New()
	h := c.Resource("todos")

	h.FetchStarted("k", false)
	h.FetchStarted("k", true)
	if got := gaugeValue(t, c.inFlight.WithLabelValues("todos")); got != 2 {
		t.Fatalf("in flight = %v, want 2", got)
	}

	h.FetchFinished("k", false, nil, 10*time.Millisecond)
	h.FetchFinished("k", true, errors.New("boom"), time.Millisecond)
	h.FetchSuppressed("k")
	h.ResultDiscarded("k")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"fetch", counterValue(t, c.fetchesTotal.WithLabelValues("todos", "fetch")), 1},
		{"refetch", counterValue(t, c.fetchesTotal.WithLabelValues("todos", "refetch")), 1},
		{"suppressed", counterValue(t, c.fetchSuppressed.WithLabelValues("todos")), 1},
		{"discarded", counterValue(t, c.resultsDiscarded.WithLabelValues("todos")), 1},
		{"errors", counterValue(t, c.fetchErrors.WithLabelValues("todos", asyncerrors.CodeProducerFailure)), 1},
		{"in flight", gaugeValue(t, c.inFlight.WithLabelValues("todos")), 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if got := histogramCount(t, c.fetchDuration.WithLabelValues("todos")); got != 2 {
		t.Errorf("duration samples = %d, want 2", got)
	}
}

func TestFetchErrorsUseErrorCode(t *testing.T) {
	c := New()
	err := asyncerrors.New(asyncerrors.CodeStoreUnavailable)
	c.Resource("todos").FetchFinished("k", false, err, 0)

	if got := counterValue(t, c.fetchErrors.WithLabelValues("todos", asyncerrors.CodeStoreUnavailable)); got != 1 {
		t.Errorf("errors(E201) = %v, want 1", got)
	}
}

func TestOptimisticHooks(t *testing.T) {
	c := New()
	h := c.Optimistic("todos")

	h.Applied(optimistic.KindAdd)
	h.Applied(optimistic.KindRemove)
	h.Resolved(optimistic.KindAdd)
	h.Rejected(optimistic.KindRemove)
	h.UnknownTempID()

	if got := counterValue(t, c.entriesTotal.WithLabelValues("todos", "add", "resolved")); got != 1 {
		t.Errorf("add resolved = %v", got)
	}
	if got := counterValue(t, c.entriesTotal.WithLabelValues("todos", "remove", "rejected")); got != 1 {
		t.Errorf("remove rejected = %v", got)
	}
	if got := gaugeValue(t, c.pending.WithLabelValues("todos")); got != 0 {
		t.Errorf("pending = %v, want 0", got)
	}
	if got := counterValue(t, c.unknownTotal.WithLabelValues("todos")); got != 1 {
		t.Errorf("unknown = %v, want 1", got)
	}
}

func TestHandlerServesNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("demo"), WithConstLabels(prometheus.Labels{"env": "test"}))
	c.Resource("todos").FetchStarted("k", false)

	if c.Registry() != reg {
		t.Fatal("Registry() should return the configured registry")
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `demo_fetches_total{env="test",mode="fetch",resource="todos"} 1`) {
		t.Errorf("metrics output missing fetch counter:\n%s", body)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Resource("x").FetchSuppressed("k")
	if got := counterValue(t, b.fetchSuppressed.WithLabelValues("x")); got != 0 {
		t.Errorf("second collector saw %v suppressed fetches", got)
	}
}
