package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"foley/internal/config"
	"foley/internal/logging"
	"foley/internal/pipeline"
	"foley/internal/runstore"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openStore opens the run database and returns a closer for it.
func (c *commandContext) openStore() (*runstore.Store, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := runstore.Open(cfg.Paths.StatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}
	return store, cfg, nil
}

// session is the state shared by commands that mutate a run: logger, store,
// the per-run lock and the wired orchestrator.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *runstore.Store
	orch    *pipeline.Orchestrator
	wiring  *wiring
	lock    *runstore.Lock
	closers []func() error
}

// openSession locks runID's workspace and wires an orchestrator whose log
// output is also written into the run directory.
func (c *commandContext) openSession(runID string, requireKeys bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if requireKeys {
		if err := cfg.RequireCredentials(); err != nil {
			return nil, err
		}
	}
	base, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logging.PruneLogs(base, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays)

	s := &session{cfg: cfg}
	lock, err := runstore.AcquireLock(cfg.RunDir(runID))
	if err != nil {
		if errors.Is(err, runstore.ErrLocked) {
			return nil, fmt.Errorf("run %s is being modified by another foley process", runID)
		}
		return nil, err
	}
	s.lock = lock
	s.closers = append(s.closers, lock.Release)

	logger, closer, err := logging.WithRunLog(base, runLogPath(cfg, runID))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open run log: %w", err)
	}
	s.logger = logger
	s.closers = append(s.closers, closer.Close)

	store, err := runstore.Open(cfg.Paths.StatePath)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open run store: %w", err)
	}
	s.store = store
	s.closers = append(s.closers, store.Close)

	s.wiring = newWiring(cfg, logger)
	orch, err := s.wiring.orchestrator(store, runID)
	if err != nil {
		s.close()
		return nil, err
	}
	s.orch = orch
	return s, nil
}

// close releases resources in reverse order and flushes metrics.
func (s *session) close() {
	if s.wiring != nil {
		s.wiring.flushMetrics()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	s.closers = nil
}

// loadRun restores a stored run by full id or unique prefix.
func (s *session) loadRun(ctx context.Context, id string) (*pipeline.Run, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return pipeline.RestoreRun(rec)
}

// resolveRunID expands a run id prefix using the store.
func (c *commandContext) resolveRunID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errors.New("run id is required")
	}
	store, _, err := c.openStore()
	if err != nil {
		return "", err
	}
	defer store.Close()
	id, err := store.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			return "", fmt.Errorf("no run matches %q; list runs with `foley runs`", prefix)
		}
		return "", err
	}
	return id, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
