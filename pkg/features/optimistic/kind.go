package optimistic

import "fmt"

// Kind is the type of speculative change carried by a pending entry.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
)

// String returns the kind's name.
func (k Kind) String() string { return string(k) }

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAdd, KindUpdate, KindRemove:
		return true
	}
	return false
}

// ParseKind parses a kind name like "add" or "remove".
func ParseKind(value string) (Kind, error) {
	k := Kind(value)
	if !k.Valid() {
		return "", fmt.Errorf("optimistic: unknown kind %q", value)
	}
	return k, nil
}

// TempID identifies a pending entry. It is its own type so it can never
// be mistaken for an element identifier.
type TempID string

// Entry is one speculative change waiting for its real operation.
type Entry[T any] struct {
	TempID  TempID
	Payload T
	Kind    Kind
}

// pendingEntry is an Entry with its insertion sequence.
type pendingEntry[T any] struct {
	Entry[T]
	seq uint64
}
