package resource

import (
	"fmt"
	"time"
)

// Status is the lifecycle position of one keyed request.
type Status int

const (
	Idle    Status = iota // No fetch has started, or the key was reset
	Loading               // Fetch in progress
	Success               // Data successfully loaded
	Error                 // Fetch failed
)

var statusNames = [...]string{
	Idle:    "idle",
	Loading: "loading",
	Success: "success",
	Error:   "error",
}

// String returns the lower-case name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("resource: unknown status %q", text)
}

// State is a snapshot of one keyed request.
//
// After an initial fetch, HasData is only true in Success and Err is only
// set in Error. While refetching the previous Data and Err stay visible,
// and a failed refetch keeps the previous Data next to the new Err.
type State[T any] struct {
	Status       Status
	Data         T
	HasData      bool
	Err          error
	IsRefetching bool

	// UpdatedAt is the time of the last Success or Error transition.
	UpdatedAt time.Time
}

func (s State[T]) IsIdle() bool    { return s.Status == Idle }
func (s State[T]) IsLoading() bool { return s.Status == Loading }
func (s State[T]) IsSuccess() bool { return s.Status == Success }
func (s State[T]) IsError() bool   { return s.Status == Error }

// DataOr returns Data when the state holds data, otherwise fallback.
func (s State[T]) DataOr(fallback T) T {
	if s.HasData {
		return s.Data
	}
	return fallback
}

// loading returns the Loading state that follows s. A refetch keeps the
// previous data and error visible.
func (s State[T]) loading(refetch bool) State[T] {
	if !refetch {
		return State[T]{Status: Loading}
	}
	next := s
	next.Status = Loading
	next.IsRefetching = true
	return next
}

// settled returns the terminal state that follows s for a finished fetch.
func (s State[T]) settled(data T, err error, refetch bool, at time.Time) State[T] {
	if err == nil {
		return State[T]{Status: Success, Data: data, HasData: true, UpdatedAt: at}
	}
	next := State[T]{Status: Error, Err: err, UpdatedAt: at}
	if refetch && s.HasData {
		next.Data = s.Data
		next.HasData = true
	}
	return next
}
