package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type item struct {
	ID    int
	Title string
}

func newItems() *Set[item, int] {
	return NewSet(func(i item) int { return i.ID }, Config{})
}

func TestApplyAddShowsInMergedView(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}})

	id := s.Apply(item{99, "temp"}, KindAdd)
	if id == "" {
		t.Fatal("Apply returned an empty temp id")
	}

	want := []item{{1, "a"}, {99, "temp"}}
	if diff := cmp.Diff(want, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]item{{1, "a"}}, s.Base()); diff != "" {
		t.Errorf("Apply must not touch the base (-want +got):\n%s", diff)
	}
}

func TestAddRoundTrip(t *testing.T) {
	s := newItems()
	id := s.Apply(item{7, "p"}, KindAdd)

	if !s.Resolve(id, item{7, "p"}) {
		t.Fatal("Resolve reported an unknown id")
	}
	if diff := cmp.Diff([]item{{7, "p"}}, s.Base()); diff != "" {
		t.Errorf("Base (-want +got):\n%s", diff)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("Pending = %v, want empty", s.Pending())
	}
}

func TestResolveReplacesTempWithRealID(t *testing.T) {
	s := newItems()
	id := s.Apply(item{99, "temp"}, KindAdd)
	s.Resolve(id, item{5, "temp"})

	want := []item{{5, "temp"}}
	if diff := cmp.Diff(want, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	s := newItems()
	id := s.Apply(item{1, "x"}, KindAdd)

	s.Resolve(id, item{1, "x"})
	once := s.Base()
	if s.Resolve(id, item{1, "changed"}) {
		t.Error("second Resolve should report an unknown id")
	}
	if diff := cmp.Diff(once, s.Base()); diff != "" {
		t.Errorf("second Resolve changed the base (-want +got):\n%s", diff)
	}
}

func TestRejectRevertsUpdate(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}, {2, "b"}})
	base := s.MergedView()

	id := s.Apply(item{2, "edited"}, KindUpdate)
	if got := s.MergedView()[1].Title; got != "edited" {
		t.Errorf("speculative update not visible, got %q", got)
	}

	if !s.Reject(id) {
		t.Fatal("Reject reported an unknown id")
	}
	if diff := cmp.Diff(base, s.MergedView()); diff != "" {
		t.Errorf("MergedView after Reject (-want +got):\n%s", diff)
	}
	if s.Reject(id) {
		t.Error("second Reject should report an unknown id")
	}
}

func TestUnknownTempIDIsNoop(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}})
	if s.Resolve("tmp-404", item{1, "zzz"}) || s.Reject("tmp-404") {
		t.Error("unknown ids should be ignored")
	}
	if diff := cmp.Diff([]item{{1, "a"}}, s.Base()); diff != "" {
		t.Errorf("Base changed (-want +got):\n%s", diff)
	}
}

func TestRemove(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}, {2, "b"}, {3, "c"}})

	id := s.Apply(item{ID: 2}, KindRemove)
	if diff := cmp.Diff([]item{{1, "a"}, {3, "c"}}, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}

	s.Resolve(id, item{ID: 2})
	if diff := cmp.Diff([]item{{1, "a"}, {3, "c"}}, s.Base()); diff != "" {
		t.Errorf("Base (-want +got):\n%s", diff)
	}
}

func TestUpdateOfMissingElement(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}})

	id := s.Apply(item{8, "ghost"}, KindUpdate)
	if diff := cmp.Diff([]item{{1, "a"}}, s.MergedView()); diff != "" {
		t.Errorf("speculative update of a missing element should be ignored (-want +got):\n%s", diff)
	}

	s.Resolve(id, item{8, "ghost"})
	if diff := cmp.Diff([]item{{1, "a"}, {8, "ghost"}}, s.Base()); diff != "" {
		t.Errorf("confirmed update should be appended (-want +got):\n%s", diff)
	}
}

func TestMergedViewInInsertionOrder(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}, {2, "b"}})

	s.Apply(item{3, "c"}, KindAdd)
	s.Apply(item{1, "a2"}, KindUpdate)
	s.Apply(item{3, ""}, KindRemove)
	s.Apply(item{4, "d"}, KindAdd)

	want := []item{{1, "a2"}, {2, "b"}, {4, "d"}}
	for i := 0; i < 2; i++ {
		if diff := cmp.Diff(want, s.MergedView()); diff != "" {
			t.Errorf("read %d: MergedView (-want +got):\n%s", i, diff)
		}
	}
	if len(s.Pending()) != 4 {
		t.Errorf("MergedView must not consume pending entries")
	}
}

func TestMergedViewIsFresh(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}})

	view := s.MergedView()
	view[0].Title = "mutated by caller"

	if got := s.MergedView()[0].Title; got != "a" {
		t.Errorf("MergedView shares memory with the set, got %q", got)
	}

	s.Apply(item{2, "b"}, KindAdd)
	if len(s.MergedView()) != 2 {
		t.Error("MergedView should reflect entries applied after an earlier read")
	}
}

func TestSameElementLaterInsertionWins(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "orig"}})

	e1 := s.Apply(item{1, "E1"}, KindUpdate)
	e2 := s.Apply(item{1, "E2"}, KindUpdate)

	if got := s.MergedView()[0].Title; got != "E2" {
		t.Errorf("merged title = %q, want E2", got)
	}

	s.Resolve(e1, item{1, "E1"})
	if got := s.MergedView()[0].Title; got != "E2" {
		t.Errorf("after resolving E1 merged title = %q, want E2", got)
	}
	s.Resolve(e2, item{1, "E2"})

	if diff := cmp.Diff([]item{{1, "E2"}}, s.Base()); diff != "" {
		t.Errorf("Base (-want +got):\n%s", diff)
	}
}

func TestOutOfOrderResolution(t *testing.T) {
	s := newItems()
	a := s.Apply(item{10, "a"}, KindAdd)
	b := s.Apply(item{11, "b"}, KindAdd)

	s.Resolve(b, item{21, "b"})
	want := []item{{21, "b"}, {10, "a"}}
	if diff := cmp.Diff(want, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}

	s.Reject(a)
	if diff := cmp.Diff([]item{{21, "b"}}, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}
}

func TestLaterInsertionWinsWhenResolvedFirst(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "orig"}})
	e1 := s.Apply(item{1, "E1"}, KindUpdate)
	e2 := s.Apply(item{1, "E2"}, KindUpdate)

	s.Resolve(e2, item{1, "E2"})
	if diff := cmp.Diff([]item{{1, "E2"}}, s.MergedView()); diff != "" {
		t.Errorf("after resolving E2 MergedView (-want +got):\n%s", diff)
	}

	if !s.Resolve(e1, item{1, "E1"}) {
		t.Fatal("Resolve(e1) should find the pending entry")
	}
	if len(s.Pending()) != 0 {
		t.Errorf("pending = %v, want none", s.Pending())
	}
	if diff := cmp.Diff([]item{{1, "E2"}}, s.Base()); diff != "" {
		t.Errorf("Base (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]item{{1, "E2"}}, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}
}

func TestLaterRemoveWinsWhenResolvedFirst(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "orig"}, {2, "other"}})
	update := s.Apply(item{1, "edited"}, KindUpdate)
	remove := s.Apply(item{1, "orig"}, KindRemove)

	s.Resolve(remove, item{1, "orig"})
	want := []item{{2, "other"}}
	if diff := cmp.Diff(want, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}

	s.Resolve(update, item{1, "edited"})
	if diff := cmp.Diff(want, s.Base()); diff != "" {
		t.Errorf("Base (-want +got):\n%s", diff)
	}
}

func TestEarlierResolveStillAppliesAfterOrderedResolution(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "orig"}})
	e1 := s.Apply(item{1, "E1"}, KindUpdate)
	s.Resolve(e1, item{1, "E1"})

	// A new edit after the earlier one settled is applied normally.
	e2 := s.Apply(item{1, "E2"}, KindUpdate)
	if got := s.MergedView()[0].Title; got != "E2" {
		t.Errorf("merged title = %q, want E2", got)
	}
	s.Resolve(e2, item{1, "E2"})
	if got := s.Base()[0].Title; got != "E2" {
		t.Errorf("base title = %q, want E2", got)
	}
}

func TestTempIDsAreUnique(t *testing.T) {
	s := NewSet(func(i item) int { return i.ID }, Config{TempIDPrefix: "draft-"})
	seen := map[TempID]bool{}
	for i := 0; i < 100; i++ {
		id := s.Apply(item{ID: i}, KindAdd)
		if seen[id] {
			t.Fatalf("duplicate temp id %q", id)
		}
		seen[id] = true
	}
	if _, ok := seen["draft-1"]; !ok {
		t.Error("prefix should be used for temp ids")
	}
}

func TestSetBaseKeepsPending(t *testing.T) {
	s := newItems()
	s.Apply(item{5, "draft"}, KindAdd)
	s.SetBase([]item{{1, "a"}})

	want := []item{{1, "a"}, {5, "draft"}}
	if diff := cmp.Diff(want, s.MergedView()); diff != "" {
		t.Errorf("MergedView (-want +got):\n%s", diff)
	}
}

func TestSubscribeReceivesMergedView(t *testing.T) {
	s := newItems()
	var views [][]item
	stop := s.Subscribe(func(v []item) { views = append(views, v) })

	id := s.Apply(item{1, "a"}, KindAdd)
	s.Reject(id)
	stop()
	s.Apply(item{2, "b"}, KindAdd)

	want := [][]item{{{1, "a"}}, {}}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestMutateResolves(t *testing.T) {
	s := newItems()
	release := make(chan struct{})

	id := s.Mutate(context.Background(), item{-1, "new"}, KindAdd, func(context.Context) (item, error) {
		<-release
		return item{42, "new"}, nil
	})

	if diff := cmp.Diff([]item{{-1, "new"}}, s.MergedView()); diff != "" {
		t.Errorf("speculative view (-want +got):\n%s", diff)
	}
	if p := s.Pending(); len(p) != 1 || p[0].TempID != id {
		t.Errorf("Pending = %+v", p)
	}

	close(release)
	waitOps(t, s)

	if diff := cmp.Diff([]item{{42, "new"}}, s.MergedView()); diff != "" {
		t.Errorf("confirmed view (-want +got):\n%s", diff)
	}
}

func TestMutateRejectsOnError(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}})

	s.Mutate(context.Background(), item{1, "bad"}, KindUpdate, func(context.Context) (item, error) {
		return item{}, errors.New("validation failed")
	})
	waitOps(t, s)

	if diff := cmp.Diff([]item{{1, "a"}}, s.MergedView()); diff != "" {
		t.Errorf("view after failed mutation (-want +got):\n%s", diff)
	}
	if len(s.Pending()) != 0 {
		t.Error("failed mutation should leave no pending entry")
	}
}

func TestMutatePanicRejects(t *testing.T) {
	s := newItems()
	s.Mutate(context.Background(), item{1, "x"}, KindAdd, func(context.Context) (item, error) {
		panic("boom")
	})
	waitOps(t, s)

	if len(s.MergedView()) != 0 {
		t.Errorf("panicking operation should be rolled back, got %v", s.MergedView())
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newItems()
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Mutate(context.Background(), item{ID: -i}, KindAdd, func(context.Context) (item, error) {
				if i%2 == 0 {
					return item{}, errors.New("even ids fail")
				}
				return item{ID: i}, nil
			})
		}(i)
	}
	wg.Wait()
	waitOps(t, s)

	if got := len(s.Base()); got != 10 {
		t.Errorf("len(Base) = %d, want 10", got)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("Pending = %v, want empty", s.Pending())
	}
}

func TestWaitRespectsContext(t *testing.T) {
	s := newItems()
	release := make(chan struct{})
	defer close(release)
	s.Mutate(context.Background(), item{ID: 1}, KindAdd, func(context.Context) (item, error) {
		<-release
		return item{ID: 1}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

type countingHooks struct {
	mu                                  sync.Mutex
	applied, resolved, rejected, unknown int
}

func (h *countingHooks) Applied(Kind)   { h.mu.Lock(); h.applied++; h.mu.Unlock() }
func (h *countingHooks) Resolved(Kind)  { h.mu.Lock(); h.resolved++; h.mu.Unlock() }
func (h *countingHooks) Rejected(Kind)  { h.mu.Lock(); h.rejected++; h.mu.Unlock() }
func (h *countingHooks) UnknownTempID() { h.mu.Lock(); h.unknown++; h.mu.Unlock() }

func TestHooks(t *testing.T) {
	h := &countingHooks{}
	s := NewSet(func(i item) int { return i.ID }, Config{Hooks: h})

	a := s.Apply(item{ID: 1}, KindAdd)
	b := s.Apply(item{ID: 2}, KindAdd)
	s.Resolve(a, item{ID: 1})
	s.Reject(b)
	s.Reject(b)

	if h.applied != 2 || h.resolved != 1 || h.rejected != 1 || h.unknown != 1 {
		t.Errorf("hooks = applied %d resolved %d rejected %d unknown %d",
			h.applied, h.resolved, h.rejected, h.unknown)
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"add", "update", "remove"} {
		k, err := ParseKind(name)
		if err != nil || k.String() != name {
			t.Errorf("ParseKind(%q) = %q, %v", name, k, err)
		}
	}
	if _, err := ParseKind("toggle"); err == nil {
		t.Error("ParseKind should reject unknown kinds")
	}
}

func waitOps(t *testing.T, s *Set[item, int]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestResolveWithUnchangedViewStillNotifies(t *testing.T) {
	s := newItems()
	s.SetBase([]item{{1, "a"}})

	id := s.Apply(item{1, "b"}, KindUpdate)
	calls := 0
	stop := s.Subscribe(func([]item) { calls++ })
	defer stop()

	s.Resolve(id, item{1, "b"})
	if calls != 1 {
		t.Errorf("notifications = %d, want 1", calls)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("pending = %v, want none", s.Pending())
	}
}

func TestSubscriberApplyingEndsOnLatestView(t *testing.T) {
	s := newItems()
	var views [][]item
	stop1 := s.Subscribe(func(v []item) {
		if len(v) == 1 {
			s.Apply(item{2, "follow-up"}, KindAdd)
		}
	})
	defer stop1()
	stop2 := s.Subscribe(func(v []item) { views = append(views, v) })
	defer stop2()

	s.Apply(item{1, "first"}, KindAdd)

	want := [][]item{{{1, "first"}}, {{1, "first"}, {2, "follow-up"}}}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}
