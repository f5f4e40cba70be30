package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"notesmith/internal/config"
	"notesmith/internal/logging"
	"notesmith/internal/task"
	"notesmith/internal/workflow"
)

// Daemon ties the HTTP API, the task store, and the workflow orchestrator
// together and enforces single-instance execution through a file lock.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *task.Store
	orchestrator *workflow.Orchestrator

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DBPath       string
	LockFilePath string
	Tasks        task.Stats
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *task.Store, logger *slog.Logger, orchestrator *workflow.Orchestrator) (*Daemon, error) {
	if cfg == nil || store == nil || orchestrator == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "notesmithd.lock")
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		orchestrator: orchestrator,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, reconciles tasks stranded by a previous run,
// seeds the default note template, and brings up the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another notesmith daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.orchestrator.Reconcile(d.ctx); err != nil {
		d.unwind()
		return err
	}
	if err := d.store.SeedDefaultTemplate(d.ctx); err != nil {
		d.unwind()
		return fmt.Errorf("seed default template: %w", err)
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.unwind()
		return err
	}
	if api != nil {
		if err := api.start(d.ctx); err != nil {
			d.unwind()
			return err
		}
	}
	d.api = api

	d.running.Store(true)
	d.logger.Info("notesmith daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API, waits for in-flight tasks, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	d.orchestrator.Shutdown()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("notesmith daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound address of the HTTP API, or "" when the API is
// not serving.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read task stats", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		Tasks:        stats,
	}
}

func (d *Daemon) unwind() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}
