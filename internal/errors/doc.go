// Package errors provides structured, coded errors for asyncstate.
//
// Every error raised outside the core state machines carries a code
// (e.g. "E101") that maps to a category, a short message and a longer
// explanation. Codes are grouped by range:
//   - E001-E099: runtime outcomes of the request tracker and optimistic set
//   - E100-E199: configuration
//   - E200-E299: todo stores
//   - E300-E399: the HTTP server
//
// The runtime codes are mostly informational: the tracker and the set
// never return them to callers, they only tag log records and metrics.
//
// # Usage
//
//	err := errors.New(errors.CodeConfigInvalid).
//	    WithDetailf("server.port %d is out of range", port).
//	    WithSuggestion("Use a port between 0 and 65535")
//
//	errors.Fprint(os.Stderr, err)
package errors
