package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
)

// Message is pushed to WebSocket clients whenever the tracker state or
// the merged view changes.
type Message struct {
	Type  string         `json:"type"`
	State *StateResponse `json:"state,omitempty"`
	View  *ViewResponse  `json:"view,omitempty"`
}

// Message types.
const (
	MessageState = "state"
	MessageView  = "view"
)

// command is sent by WebSocket clients: {"type":"fetch"|"refetch"|"reset"}.
type command struct {
	Type string `json:"type"`
}

// conn is one WebSocket client. Updates are coalesced: only the latest
// state and view are kept until the write loop sends them.
type conn struct {
	s  *Server
	ws *websocket.Conn

	mu    sync.Mutex
	state *StateResponse
	view  *ViewResponse

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "code", errors.CodeWebSocketUpgrade, "error", err)
		return
	}

	c := &conn{
		s:    s,
		ws:   ws,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	// Each connection observes the key; when the last one leaves during a
	// fetch, the fetch is abandoned.
	stopState := s.tracker.Subscribe(TodosKey, func(st asyncstate.State[[]todo.Todo]) {
		resp := newStateResponse(st)
		c.push(&resp, nil, true)
	})
	stopView := s.set.Subscribe(func([]todo.Todo) {
		v := s.view()
		c.push(nil, &v, true)
	})

	st := newStateResponse(s.tracker.State(TodosKey))
	v := s.view()
	c.push(&st, &v, false)

	s.logger.Debug("websocket connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()

	stopState()
	stopView()
	c.close(websocket.CloseNormalClosure, "")

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	s.logger.Debug("websocket disconnected", "remote", r.RemoteAddr)
}

// push queues state and view for sending. Unless overwrite is set, a
// value already queued is kept.
func (c *conn) push(state *StateResponse, view *ViewResponse, overwrite bool) {
	c.mu.Lock()
	if state != nil && (overwrite || c.state == nil) {
		c.state = state
	}
	if view != nil && (overwrite || c.view == nil) {
		c.view = view
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *conn) take() (*StateResponse, *ViewResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, view := c.state, c.view
	c.state, c.view = nil, nil
	return state, view
}

// readLoop handles client commands until the connection closes.
func (c *conn) readLoop() {
	cfg := c.s.config
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(2 * cfg.HeartbeatInterval))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(2 * cfg.HeartbeatInterval))
	})

	for {
		var cmd command
		if err := c.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		switch cmd.Type {
		case "fetch":
			c.s.tracker.Fetch(TodosKey, c.s.produce)
		case "refetch":
			c.s.tracker.Refetch(TodosKey)
		case "reset":
			c.s.tracker.Reset(TodosKey)
		default:
			c.s.logger.Debug("unknown websocket command", "type", cmd.Type)
		}
	}
}

// writeLoop sends queued updates and heartbeats until the connection
// closes.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.wake:
			state, view := c.take()
			if state != nil {
				if err := c.write(Message{Type: MessageState, State: state}); err != nil {
					return
				}
			}
			if view != nil {
				if err := c.write(Message{Type: MessageView, View: view}); err != nil {
					return
				}
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.s.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *conn) write(m Message) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.s.config.WriteTimeout))
	if err := c.ws.WriteJSON(m); err != nil {
		c.s.logger.Debug("websocket write error", "error", err)
		c.ws.Close()
		return err
	}
	return nil
}

func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.s.config.WriteTimeout)
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
		c.ws.Close()
	})
}
