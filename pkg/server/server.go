package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/asyncstate"
	apperrors "github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
)

// TodosKey is the tracker key of the todo list.
const TodosKey = "todos"

// Server serves a tracked todo list and an optimistic view of it over
// HTTP and WebSocket.
type Server struct {
	config *Config
	logger *slog.Logger
	client *asyncstate.Client

	store   todo.Store
	tracker *asyncstate.Tracker[[]todo.Todo]
	set     *asyncstate.Set[todo.Todo, int64]

	// tempKey hands out negative ids for todos not yet created.
	tempKey atomic.Int64

	router   chi.Router
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	conns      map[*conn]struct{}
}

// New creates a Server over store. Trackers and sets are built from client.
func New(store todo.Store, client *asyncstate.Client, config *Config) *Server {
	if client == nil {
		client = asyncstate.New(asyncstate.Options{})
	}
	config = config.withDefaults()

	s := &Server{
		config:  config,
		logger:  client.Logger().With("component", "server"),
		client:  client,
		store:   store,
		tracker: asyncstate.NewTracker[[]todo.Todo](client, TodosKey),
		set:     asyncstate.NewSet(client, TodosKey, todo.Key),
		upgrader: websocket.Upgrader{
			CheckOrigin: config.CheckOrigin,
		},
		conns: make(map[*conn]struct{}),
	}

	// A successful fetch is the new confirmed base.
	s.tracker.OnSuccess(func(_ string, todos []todo.Todo) {
		s.set.SetBase(todos)
	})

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(tracing(s.client, s.config.TracerName))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if m := s.client.Metrics(); m != nil && s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, m.Handler())
	}

	r.Route("/api/todos", func(r chi.Router) {
		r.Get("/", s.handleFetch)
		r.Post("/", s.handleCreate)
		r.Post("/refetch", s.handleRefetch)
		r.Delete("/state", s.handleReset)
		r.Get("/view", s.handleView)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	r.Get("/ws", s.handleWebSocket)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Tracker returns the tracker of the todo list.
func (s *Server) Tracker() *asyncstate.Tracker[[]todo.Todo] {
	return s.tracker
}

// Set returns the optimistic set over the todo list.
func (s *Server) Set() *asyncstate.Set[todo.Todo, int64] {
	return s.set
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return apperrors.New(apperrors.CodeServerStart).
			WithDetailf("Cannot listen on %s", s.config.Address).
			Wrap(err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.httpServer = hs
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- hs.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes WebSocket connections, stops the HTTP server and waits
// for pending optimistic operations, all within ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	hs := s.httpServer
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	if err := s.set.Wait(ctx); err != nil {
		s.logger.Warn("pending operations still running", "error", err)
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
