package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"

	"github.com/stagecraft/stagehand/internal/agent"
	"github.com/stagecraft/stagehand/internal/archive"
	"github.com/stagecraft/stagehand/internal/config"
	"github.com/stagecraft/stagehand/internal/event"
	"github.com/stagecraft/stagehand/internal/notify"
	"github.com/stagecraft/stagehand/internal/task"
	"github.com/stagecraft/stagehand/internal/theater"
	"github.com/stagecraft/stagehand/pkg/storage"
)

// Daemon wires the whole crew scheduler: event bus, agent registry with
// roster reload and autoscaling, the task manager, the terminal-task
// archive, push notifications, event hooks, the deliverable asset store,
// the theater backend proxy and the HTTP API.
type Daemon struct {
	env      *config.Env
	bus      *event.Bus
	registry *agent.Registry
	manager  *task.Manager
	archive  *archive.Store
	watcher  *agent.RosterWatcher
	scaler   *agent.AutoScaler
	server   *Server
	clock    clockwork.Clock
}

func New(env *config.Env) (*Daemon, error) {
	bus, err := event.NewBus()
	if err != nil {
		return nil, err
	}
	clock := clockwork.NewRealClock()

	registry := agent.NewRegistry(bus)
	roster, err := agent.LoadRoster(filepath.Join(env.StateDir, "roster.yaml"))
	if err != nil {
		return nil, err
	}
	registry.Apply(roster)

	manager := task.NewManager(registry, bus, clock,
		task.WithRepository(task.NewYAMLRepository(filepath.Join(env.StateDir, "tasks.yaml"))),
		task.WithMonitorInterval(env.MonitorInterval),
		task.WithSweepInterval(env.SweepInterval),
	)

	store, err := buildStorage(env)
	if err != nil {
		return nil, err
	}

	arch, err := archive.Open(filepath.Join(env.StateDir, "archive.db"))
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		env:      env,
		bus:      bus,
		registry: registry,
		manager:  manager,
		archive:  arch,
		clock:    clock,
	}

	d.scaler = agent.NewAutoScaler(roster, registry, clock, env.ScaleInterval, func() {
		// New capacity may unblock a queue head.
		manager.Sweep(context.Background())
	})

	d.watcher = agent.NewRosterWatcher(filepath.Join(env.StateDir, "roster.yaml"), registry, func(r *agent.Roster) {
		d.scaler.SetRoster(r)
		manager.Sweep(context.Background())
	})

	subs, err := notify.NewSubscriptionStore(filepath.Join(env.StateDir, "push_subscriptions.yaml"))
	if err != nil {
		return nil, err
	}
	sender := notify.NewSender(&env.VAPIDEnv, subs)
	if err := notify.NewDispatcher(bus, sender).Start(); err != nil {
		return nil, err
	}

	if err := d.wireArchive(); err != nil {
		return nil, err
	}
	if err := d.wireHooks(roster.Hooks); err != nil {
		return nil, err
	}

	stage := theater.New(env.TheaterEnv.BaseURL,
		theater.WithClock(clock),
		theater.WithMinInterval(env.TheaterEnv.MinInterval),
	)

	d.server = NewServer(env.ListenAddr(), manager, registry, arch, subs, store, stage)
	return d, nil
}

func buildStorage(env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		return storage.NewS3Storage(context.Background(), env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
}

// wireArchive records every terminal transition into the SQLite archive.
func (d *Daemon) wireArchive() error {
	err := event.SubscribeTyped(d.bus, event.TaskCompleted, "archive-completed",
		func(ctx context.Context, ev *event.Event[event.TaskCompletedData]) error {
			return d.archiveTask(ctx, ev.Data.TaskID, "completed", "")
		})
	if err != nil {
		return err
	}
	return event.SubscribeTyped(d.bus, event.TaskFailed, "archive-failed",
		func(ctx context.Context, ev *event.Event[event.TaskFailedData]) error {
			return d.archiveTask(ctx, ev.Data.TaskID, "failed", ev.Data.Reason)
		})
}

func (d *Daemon) archiveTask(ctx context.Context, taskID, outcome, reason string) error {
	t, err := d.manager.Get(taskID)
	if err != nil {
		return err
	}
	finished := t.CompletedAt
	if finished.IsZero() {
		finished = d.clock.Now()
	}
	return d.archive.Put(ctx, archive.Record{
		TaskID:         t.ID,
		Name:           t.Name,
		Queue:          string(t.Queue),
		Outcome:        outcome,
		Reason:         reason,
		DurationMillis: t.DurationMillis(),
		CreatedAt:      t.CreatedAt,
		FinishedAt:     finished,
	})
}

func (d *Daemon) wireHooks(hooks []event.Hook) error {
	if len(hooks) == 0 {
		return nil
	}
	executor, err := event.NewHookExecutor(hooks)
	if err != nil {
		return err
	}
	return event.RegisterHooks(d.bus, executor)
}

// Run starts every component and blocks until ctx is cancelled, then
// shuts down in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.manager.Restore(ctx); err != nil {
		return err
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := d.bus.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event bus stopped", "error", err)
		}
	})
	select {
	case <-d.bus.Running():
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	}

	wg.Go(func() { _ = d.manager.Run(ctx) })
	wg.Go(func() { _ = d.scaler.Run(ctx) })
	wg.Go(func() {
		if err := d.watcher.Run(ctx); err != nil {
			slog.Warn("roster watcher stopped", "error", err)
		}
	})
	wg.Go(func() {
		err := d.server.ListenAndServe(ctx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "error", err)
		}
	})

	slog.InfoContext(ctx, "stagehand daemon started", "addr", d.env.ListenAddr())
	<-ctx.Done()

	shutdownCtx := context.WithoutCancel(ctx)
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "error", err)
	}
	wg.Wait()
	if err := d.bus.Stop(); err != nil {
		slog.Warn("event bus shutdown failed", "error", err)
	}
	if err := d.archive.Close(); err != nil {
		slog.Warn("archive close failed", "error", err)
	}
	return nil
}
