package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/asbelov/alepiz-sub006/internal/actions"
	"github.com/asbelov/alepiz-sub006/internal/config"
	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/replication"
	"github.com/asbelov/alepiz-sub006/internal/rules"
	"github.com/asbelov/alepiz-sub006/internal/store"
	"github.com/asbelov/alepiz-sub006/internal/tasks"
)

// service is the engine with every collaborator the configuration asks for.
type service struct {
	cfg       *config.Config
	store     *store.Store
	engine    *engine.Engine
	processor *actions.Processor
	rules     rules.Set

	// closers run in reverse order after the engine stopped.
	closers []func() error

	cancel context.CancelFunc
	done   chan error
}

// serviceOptions override parts of the wiring (tests).
type serviceOptions struct {
	taskRunner engine.TaskRunner
	engineOpts []engine.Option
}

// loadConfig reads --config and applies the --db override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openService wires the store, replication sinks, task runners, rules and
// engine. The engine is not started; call start.
func openService(ctx context.Context, cfg *config.Config, so serviceOptions) (_ *service, err error) {
	svc := &service{cfg: cfg}
	defer func() {
		if err != nil {
			_ = svc.closeAll()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if cfg.RulesDir != "" {
		rs, err := rules.Load(cfg.RulesDir)
		if err != nil {
			return nil, fmt.Errorf("load counter rules: %w", err)
		}
		svc.rules = rs
		slog.Info("counter rules loaded", "dir", cfg.RulesDir, "counters", len(rs))
	}

	storeOpts := []store.Option{store.WithMaxParams(cfg.MaxQueryParams)}
	if cfg.Replicating() {
		async, err := openReplication(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, async.Close)
		storeOpts = append(storeOpts, store.WithReplicator(async))
	}

	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	svc.store = st
	svc.closers = append(svc.closers, st.Close)

	runner := so.taskRunner
	if runner == nil {
		runner = svc.taskRunner(cfg)
	}

	engineOpts := []engine.Option{
		engine.WithLocation(loc),
		engine.WithTaskRunner(runner),
		engine.WithFlushInterval(cfg.FlushInterval),
	}
	svc.engine = engine.New(st, append(engineOpts, so.engineOpts...)...)
	svc.processor = actions.New(svc.engine)
	return svc, nil
}

// openReplication creates the asynchronous replicator and its sinks.
func openReplication(ctx context.Context, cfg *config.Config) (*replication.Async, error) {
	var sinks []replication.Sink
	closeSinks := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if cfg.Kafka.ReplicationTopic != "" {
		k, err := replication.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.ReplicationTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka replication: %w", err)
		}
		sinks = append(sinks, k)
	}

	if cfg.Postgres.DSN != "" {
		p, err := replication.NewPostgresSink(ctx, cfg.Postgres.DSN)
		if err != nil {
			closeSinks()
			return nil, fmt.Errorf("postgres replication: %w", err)
		}
		sinks = append(sinks, p)
		if err := p.Migrate(ctx); err != nil {
			closeSinks()
			return nil, fmt.Errorf("postgres replication: %w", err)
		}
	}

	slog.Info("replication enabled", "sinks", len(sinks), "buffer", cfg.Replication.Buffer)
	return replication.NewAsync(sinks, replication.WithBuffer(cfg.Replication.Buffer)), nil
}

// taskRunner logs every task and, with a Redis address, queues it on the
// task stream.
func (s *service) taskRunner(cfg *config.Config) engine.TaskRunner {
	if cfg.Redis.Addr == "" {
		return tasks.LogRunner{}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	s.closers = append(s.closers, client.Close)
	slog.Info("queueing tasks on redis", "addr", cfg.Redis.Addr, "stream", cfg.Redis.TaskStream)

	return tasks.Multi{
		tasks.LogRunner{},
		tasks.NewRedisRunner(client, tasks.WithStream(cfg.Redis.TaskStream)),
	}
}

// start runs the engine loop in the background.
func (s *service) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- s.engine.Run(runCtx) }()
}

// wait blocks until the engine loop returns.
func (s *service) wait() error {
	if s.done == nil {
		return nil
	}
	err := <-s.done
	s.done = nil
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close drains the engine, waits for task hooks and releases everything.
func (s *service) Close() error {
	var errs []error
	if s.engine != nil && s.done != nil {
		s.engine.Stop()
		if err := s.wait(); err != nil {
			errs = append(errs, fmt.Errorf("engine: %w", err))
		}
		s.engine.WaitHooks()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *service) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
