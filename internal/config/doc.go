// Package config provides configuration parsing for asyncstate.
//
// The configuration is stored in asyncstate.json, asyncstate.toml or
// asyncstate.yaml. Every field has a default, so a missing file is not an
// error for the CLI: it falls back to New().
//
// # Configuration File Structure
//
//	{
//	  "server": {"host": "localhost", "port": 8080, "shutdownTimeout": "10s"},
//	  "tracker": {"staleTime": "5s"},
//	  "optimistic": {"tempIdPrefix": "tmp-"},
//	  "store": {
//	    "backend": "bolt",
//	    "memory": {"latency": "300ms", "failureRate": 0.2},
//	    "bolt": {"path": "todos.db", "bucket": "todos"},
//	    "s3": {"bucket": "my-todos", "prefix": "todos/", "region": "us-east-1"}
//	  },
//	  "log": {"level": "debug", "format": "json"},
//	  "metrics": {"enabled": true, "namespace": "asyncstate", "path": "/metrics"}
//	}
//
// # Usage
//
//	cfg, err := config.LoadFile("asyncstate.toml")
//	if err != nil {
//	    errors.Fprint(os.Stderr, err)
//	    os.Exit(1)
//	}
//	if err := cfg.Validate(); err != nil {
//	    ...
//	}
package config
