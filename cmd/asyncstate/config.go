package main

import (
	"github.com/vango-dev/asyncstate/internal/config"
	"github.com/vango-dev/asyncstate/internal/errors"
)

// loadConfig loads the config named by --config, or the one in the
// working directory. Without either, defaults are used.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(".")
		if errors.HasCode(err, errors.CodeConfigNotFound) {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if flags.backend != "" {
		cfg.Store.Backend = flags.backend
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
