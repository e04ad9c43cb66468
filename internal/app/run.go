package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/events"
)

// Run executes the planned workflow and tears the run down afterwards. The
// returned error wraps the root cause of the first failed job.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger.With("run_id", a.runID)
	logger.Debug("App.Run method started.")
	defer a.Close()

	a.healthCheckServer()

	if a.config.EventsURL != "" {
		sock, err := events.DialSocketIO(ctx, events.SocketIOOptions{URL: a.config.EventsURL, Secrets: a.secrets})
		if err != nil {
			logger.Warn("Event stream unavailable, continuing without it.", "error", err)
		} else {
			a.publishers.add(sock)
			a.closers = append(a.closers, sock.Close)
		}
	}

	if n, err := a.artifacts.Prune(ctx); err != nil {
		logger.Warn("Failed to prune expired artifacts.", "error", err)
	} else if n > 0 {
		logger.Info("Pruned expired artifacts.", "count", n)
	}

	logger.Info("🚀 Starting workflow run...", "workflow", a.model.Workflow.Name, "jobs", a.executor.Order())
	res, err := a.executor.Run(ctx)
	a.result = res
	if res != nil {
		names := make([]string, 0, len(res.Outputs))
		for name := range res.Outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			logger.Info("Workflow output.", "name", name, "value", res.Outputs[name])
		}
	}
	if err != nil {
		return fmt.Errorf("workflow '%s' failed: %w", a.model.Workflow.Name, err)
	}
	logger.Info("🏁 Workflow finished.", "status", res.Status.String())
	return nil
}

// Close releases the servers and connections of the run and removes the run
// directory unless it should be kept. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		errs = append(errs, a.closeHealthCheckServer())
		for _, c := range a.closers {
			errs = append(errs, c())
		}
		if a.config.KeepRunDir {
			a.logger.Info("Keeping run directory.", "path", a.runDir)
			return
		}
		if err := os.RemoveAll(a.runDir); err != nil {
			errs = append(errs, fmt.Errorf("remove run directory: %w", err))
		}
	})
	return errors.Join(errs...)
}
