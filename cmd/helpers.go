package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ziadkadry99/examrender/internal/cache"
	"github.com/ziadkadry99/examrender/internal/config"
	"github.com/ziadkadry99/examrender/internal/engine"
	"github.com/ziadkadry99/examrender/internal/engine/chrome"
	"github.com/ziadkadry99/examrender/internal/engine/native"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

// loadConfig loads the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `examrender init` to create a config file", err)
	}
	return cfg, nil
}

// newLauncher returns the launcher for the configured engine.
func newLauncher(cfg *config.Config, logger *slog.Logger) (engine.Launcher, error) {
	switch cfg.Engine {
	case config.EngineChrome:
		return chrome.NewLauncher(cfg.ChromePath, logger), nil
	case config.EngineNative:
		return native.NewLauncher(cfg.FontPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newCompiler returns the math compiler, backed by the SQLite fragment
// cache when cache_path is set. The closer releases the cache.
func newCompiler(cfg *config.Config, logger *slog.Logger) (texmath.Compiler, io.Closer, error) {
	compiler := texmath.New(texmath.WithLogger(logger))
	if cfg.CachePath == "" {
		return compiler, nopCloser{}, nil
	}
	store, err := cache.Open(cfg.CachePath, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("fragment cache opened", "path", cfg.CachePath)
	return texmath.Cached(compiler, store), store, nil
}
