// Package server exposes a tracked, optimistically edited todo list over
// HTTP and WebSocket.
//
// Routes:
//
//	GET    /api/todos          start a fetch (?wait=1 blocks until it settles)
//	POST   /api/todos/refetch  reload, keeping the current data visible
//	DELETE /api/todos/state    reset the tracker to Idle
//	GET    /api/todos/view     merged optimistic view and pending entries
//	POST   /api/todos          optimistic add, 202 with the temporary id
//	PATCH  /api/todos/{id}     optimistic update
//	DELETE /api/todos/{id}     optimistic remove
//	GET    /ws                 pushes {"type":"state"} and {"type":"view"} messages
//	GET    /healthz
//	GET    /metrics            when the client has a collector
//
// A successful fetch becomes the optimistic set's confirmed base.
package server
