package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
	"github.com/vango-dev/asyncstate/internal/todo/backend"
)

// commandTimeout bounds a single todos command.
const commandTimeout = 30 * time.Second

func todosCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "Read and change todos in the configured store",
		Long: `Read and change todos in the configured store.

Changes go through an optimistic set: the new list is printed as soon
as the change is applied, then again once the store confirms it.

Examples:
  asyncstate todos list
  asyncstate todos add "Write the report"
  asyncstate todos done 3
  asyncstate todos rm 3`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List todos",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, flags, func(s *session) error {
					_, err := s.list()
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "add <title>",
			Short: "Add a todo",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				title := strings.Join(args, " ")
				return withSession(cmd, flags, func(s *session) error {
					return s.mutate(todo.Todo{ID: -1, Title: title}, asyncstate.KindAdd,
						func(ctx context.Context) (todo.Todo, error) {
							return s.store.Create(ctx, todo.Todo{Title: title})
						})
				})
			},
		},
		&cobra.Command{
			Use:   "done <id>",
			Short: "Toggle a todo's done flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, flags, func(s *session) error {
					t, err := s.find(args[0])
					if err != nil {
						return err
					}
					t.Done = !t.Done
					return s.mutate(t, asyncstate.KindUpdate, func(ctx context.Context) (todo.Todo, error) {
						return s.store.Update(ctx, t)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Delete a todo",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, flags, func(s *session) error {
					t, err := s.find(args[0])
					if err != nil {
						return err
					}
					return s.mutate(t, asyncstate.KindRemove, func(ctx context.Context) (todo.Todo, error) {
						return t, s.store.Delete(ctx, t.ID)
					})
				})
			},
		},
	)

	return cmd
}

// session is a store with a tracker and an optimistic set over it.
type session struct {
	ctx     context.Context
	out     io.Writer
	store   todo.Store
	tracker *asyncstate.Tracker[[]todo.Todo]
	set     *asyncstate.Set[todo.Todo, int64]
}

func withSession(cmd *cobra.Command, flags *globalFlags, fn func(*session) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	logger := cfg.Log.NewLogger(os.Stderr).With("service", cfg.Name)
	store, err := backend.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client := asyncstate.New(asyncstate.Options{
		Logger:       logger,
		TempIDPrefix: cfg.Optimistic.TempIDPrefix,
	})
	s := &session{
		ctx:     ctx,
		out:     cmd.OutOrStdout(),
		store:   store,
		tracker: asyncstate.NewTracker[[]todo.Todo](client, "todos"),
		set:     asyncstate.NewSet(client, "todos", todo.Key),
	}
	s.tracker.OnSuccess(func(_ string, todos []todo.Todo) {
		s.set.SetBase(todos)
	})
	return fn(s)
}

// load fetches the list and waits for it to settle.
func (s *session) load() ([]todo.Todo, error) {
	s.tracker.Fetch("todos", s.store.List)
	st, err := s.tracker.Wait(s.ctx, "todos")
	if err != nil {
		return nil, err
	}
	if st.IsError() {
		return nil, st.Err
	}
	return st.Data, nil
}

func (s *session) list() ([]todo.Todo, error) {
	todos, err := s.load()
	if err != nil {
		return nil, err
	}
	s.print(todos, nil)
	return todos, nil
}

func (s *session) find(arg string) (todo.Todo, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return todo.Todo{}, errors.New(errors.CodeInvalidIdentifier).
			WithDetailf("%q is not a todo id", arg)
	}
	todos, err := s.load()
	if err != nil {
		return todo.Todo{}, err
	}
	for _, t := range todos {
		if t.ID == id {
			return t, nil
		}
	}
	return todo.Todo{}, todo.NotFound(id)
}

// mutate applies a change optimistically, prints the speculative list,
// then waits for the store and prints the confirmed one.
func (s *session) mutate(payload todo.Todo, kind asyncstate.Kind, op func(context.Context) (todo.Todo, error)) error {
	if len(s.set.Base()) == 0 {
		if _, err := s.load(); err != nil {
			return err
		}
	}

	var opErr error
	id := s.set.Mutate(s.ctx, payload, kind, func(ctx context.Context) (todo.Todo, error) {
		t, err := op(ctx)
		opErr = err
		return t, err
	})

	fmt.Fprintf(s.out, "Pending %s (%s):\n", kind, id)
	s.print(s.set.MergedView(), pendingIDs(s.set.Pending()))

	if err := s.set.Wait(s.ctx); err != nil {
		return err
	}
	if opErr != nil {
		fmt.Fprintln(s.out, "Rolled back:")
		s.print(s.set.MergedView(), nil)
		return opErr
	}

	fmt.Fprintln(s.out, "Confirmed:")
	s.print(s.set.MergedView(), nil)
	return nil
}

func pendingIDs(entries []asyncstate.Entry[todo.Todo]) map[int64]bool {
	ids := make(map[int64]bool, len(entries))
	for _, e := range entries {
		ids[e.Payload.ID] = true
	}
	return ids
}

func (s *session) print(todos []todo.Todo, pending map[int64]bool) {
	if len(todos) == 0 {
		fmt.Fprintln(s.out, "  (no todos)")
		return
	}
	for _, t := range todos {
		box := "[ ]"
		if t.Done {
			box = "[x]"
		}
		line := fmt.Sprintf("  %3d %s %s", t.ID, box, t.Title)
		if pending[t.ID] {
			line += "  (pending)"
		}
		fmt.Fprintln(s.out, line)
	}
}
