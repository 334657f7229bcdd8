package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
)

// StateResponse is the JSON form of the tracker state.
type StateResponse struct {
	Status       string      `json:"status"`
	Data         []todo.Todo `json:"data"`
	HasData      bool        `json:"hasData"`
	Error        string      `json:"error,omitempty"`
	IsRefetching bool        `json:"isRefetching"`
	UpdatedAt    *time.Time  `json:"updatedAt,omitempty"`
}

func newStateResponse(st asyncstate.State[[]todo.Todo]) StateResponse {
	out := StateResponse{
		Status:       st.Status.String(),
		Data:         st.Data,
		HasData:      st.HasData,
		IsRefetching: st.IsRefetching,
	}
	if out.Data == nil {
		out.Data = []todo.Todo{}
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		at := st.UpdatedAt
		out.UpdatedAt = &at
	}
	return out
}

// PendingEntry is the JSON form of one pending optimistic entry.
type PendingEntry struct {
	TempID  asyncstate.TempID `json:"tempId"`
	Kind    asyncstate.Kind   `json:"kind"`
	Payload todo.Todo         `json:"payload"`
}

// ViewResponse is the merged optimistic view and what is still pending.
type ViewResponse struct {
	Items   []todo.Todo    `json:"items"`
	Pending []PendingEntry `json:"pending"`
}

func (s *Server) view() ViewResponse {
	entries := s.set.Pending()
	out := ViewResponse{
		Items:   s.set.MergedView(),
		Pending: make([]PendingEntry, 0, len(entries)),
	}
	for _, e := range entries {
		out.Pending = append(out.Pending, PendingEntry{TempID: e.TempID, Kind: e.Kind, Payload: e.Payload})
	}
	return out
}

// MutationResponse acknowledges an accepted optimistic change.
type MutationResponse struct {
	TempID asyncstate.TempID `json:"tempId"`
	Item   todo.Todo         `json:"item"`
}

func (s *Server) produce(ctx context.Context) ([]todo.Todo, error) {
	return s.store.List(ctx)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Fetch(TodosKey, s.produce)
	if r.URL.Query().Get("wait") != "" && st.IsLoading() {
		var err error
		st, err = s.tracker.Wait(r.Context(), TodosKey)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

func (s *Server) handleRefetch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateResponse(s.tracker.Refetch(TodosKey)))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.tracker.Reset(TodosKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view())
}

// todoInput is the body of create and update requests.
type todoInput struct {
	Title *string `json:"title"`
	Done  *bool   `json:"done"`
}

func decodeInput(r *http.Request) (todoInput, error) {
	var in todoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, errors.New(errors.CodeBadRequest).WithDetail("invalid JSON body").Wrap(err)
	}
	return in, nil
}

// opContext detaches a mutation from its request so it outlives the
// response but keeps request values such as the span.
func opContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if in.Title == nil || *in.Title == "" {
		writeError(w, errors.New(errors.CodeBadRequest).WithDetail("title is required"))
		return
	}

	draft := todo.Todo{ID: s.tempKey.Add(-1), Title: *in.Title}
	if in.Done != nil {
		draft.Done = *in.Done
	}
	id := s.set.Mutate(opContext(r), draft, asyncstate.KindAdd, func(ctx context.Context) (todo.Todo, error) {
		return s.store.Create(ctx, todo.Todo{Title: draft.Title, Done: draft.Done})
	})
	writeJSON(w, http.StatusAccepted, MutationResponse{TempID: id, Item: draft})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	current, ok := s.lookup(w, r)
	if !ok {
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	next := current
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Done != nil {
		next.Done = *in.Done
	}
	id := s.set.Mutate(opContext(r), next, asyncstate.KindUpdate, func(ctx context.Context) (todo.Todo, error) {
		return s.store.Update(ctx, next)
	})
	writeJSON(w, http.StatusAccepted, MutationResponse{TempID: id, Item: next})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	current, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id := s.set.Mutate(opContext(r), current, asyncstate.KindRemove, func(ctx context.Context) (todo.Todo, error) {
		return current, s.store.Delete(ctx, current.ID)
	})
	writeJSON(w, http.StatusAccepted, MutationResponse{TempID: id, Item: current})
}

// lookup finds the todo named by the {id} URL parameter in the merged
// view, writing an error response when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (todo.Todo, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, errors.New(errors.CodeInvalidIdentifier).WithDetailf("%q", raw))
		return todo.Todo{}, false
	}
	for _, t := range s.set.MergedView() {
		if t.ID == id {
			return t, true
		}
	}
	writeError(w, todo.NotFound(id))
	return todo.Todo{}, false
}
