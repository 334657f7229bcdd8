package resource

import (
	"errors"
	"testing"
)

func TestMatch(t *testing.T) {
	handlers := []Handler[string, string]{
		OnRefetching[string](func(prev string) string { return "refreshing " + prev }),
		OnLoading[string](func() string { return "loading" }),
		OnError[string](func(err error) string { return "error: " + err.Error() }),
		OnSuccess(func(data string) string { return "ready: " + data }),
		OnIdle[string](func() string { return "idle" }),
	}

	tests := []struct {
		name  string
		state State[string]
		want  string
	}{
		{"idle", State[string]{}, "idle"},
		{"loading", State[string]{Status: Loading}, "loading"},
		{"refetching", State[string]{Status: Loading, IsRefetching: true, Data: "old", HasData: true}, "refreshing old"},
		{"error", State[string]{Status: Error, Err: errors.New("boom")}, "error: boom"},
		{"success", State[string]{Status: Success, Data: "hi", HasData: true}, "ready: hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.state, handlers...)
			if !ok {
				t.Fatal("Match found no handler")
			}
			if got != tt.want {
				t.Errorf("Match = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchNoHandler(t *testing.T) {
	got, ok := Match(State[int]{Status: Error, Err: errors.New("x")},
		OnSuccess(func(n int) int { return n }),
	)
	if ok || got != 0 {
		t.Errorf("Match = %d, %v; want zero, false", got, ok)
	}
}

func TestMatchLoadingOrIdle(t *testing.T) {
	h := OnLoadingOrIdle[int](func() string { return "waiting" })
	for _, s := range []Status{Idle, Loading} {
		if got, ok := Match(State[int]{Status: s}, h); !ok || got != "waiting" {
			t.Errorf("%v: Match = %q, %v", s, got, ok)
		}
	}
	if _, ok := Match(State[int]{Status: Success}, h); ok {
		t.Error("success should not match OnLoadingOrIdle")
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{Idle, Loading, Success, Error} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Status
		if err := back.UnmarshalText(text); err != nil || back != s {
			t.Errorf("round trip of %v = %v, %v", s, back, err)
		}
	}
	var s Status
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("unknown status should fail")
	}
	if Status(9).String() != "status(9)" {
		t.Errorf("String() = %q", Status(9).String())
	}
}

func TestStateDataOr(t *testing.T) {
	if got := (State[int]{}).DataOr(5); got != 5 {
		t.Errorf("DataOr on idle = %d", got)
	}
	if got := (State[int]{Status: Error, Data: 3, HasData: true}).DataOr(5); got != 3 {
		t.Errorf("DataOr on error with stale data = %d", got)
	}
}
