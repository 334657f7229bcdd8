// Package backend opens the todo.Store selected by configuration.
package backend

import (
	"context"
	"log/slog"

	"github.com/vango-dev/asyncstate/internal/config"
	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/internal/todo"
	"github.com/vango-dev/asyncstate/internal/todo/boltstore"
	"github.com/vango-dev/asyncstate/internal/todo/s3store"
)

// Seed is loaded into a fresh memory store.
var Seed = []todo.Todo{
	{ID: 1, Title: "Read the request tracker docs", Done: true},
	{ID: 2, Title: "Try an optimistic add"},
	{ID: 3, Title: "Break the network and watch it roll back"},
}

// Open returns the store named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (todo.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "memory":
		logger.Info("using memory store",
			"latency", cfg.Memory.LatencyDuration(),
			"failure_rate", cfg.Memory.FailureRate,
		)
		return todo.NewMemoryStore(todo.MemoryOptions{
			Latency:     cfg.Memory.LatencyDuration(),
			FailureRate: cfg.Memory.FailureRate,
			Seed:        cfg.Memory.Seed,
		}, Seed...), nil

	case "bolt":
		logger.Info("using bolt store", "path", cfg.Bolt.Path, "bucket", cfg.Bolt.Bucket)
		return boltstore.Open(cfg.Bolt.Path, cfg.Bolt.Bucket)

	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, errors.New(errors.CodeConfigInvalid).
				WithDetail("store.s3.bucket is required for the s3 backend")
		}
		logger.Info("using s3 store", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix, "region", cfg.S3.Region)
		client := s3store.NewClient(s3store.Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		return s3store.New(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New(errors.CodeUnknownBackend).
		WithDetailf("Unknown store backend %q", cfg.Backend)
}
