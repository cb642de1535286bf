package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker wraps the asynq server and the periodic check scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

type WorkerConfig struct {
	Redis  asynq.RedisConnOpt
	Logger *slog.Logger
	Checks *ChecksJob
	// VerifyCron schedules chain verification followed by a consistency
	// check. Empty disables scheduling.
	VerifyCron  string
	Concurrency int
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Checks == nil {
		return nil, errors.New("worker: checks job is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}

	srv := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			cfg.Logger.Error("task failed", slog.String("task", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskVerifyChain, cfg.Checks.HandleVerifyChain)
	mux.HandleFunc(TaskCheckConsistency, cfg.Checks.HandleCheckConsistency)

	var scheduler *asynq.Scheduler
	if cfg.VerifyCron != "" {
		scheduler = asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{Location: time.UTC})
		verify, err := NewVerifyChainTask("scheduler")
		if err != nil {
			return nil, err
		}
		consistency, err := NewCheckConsistencyTask("scheduler")
		if err != nil {
			return nil, err
		}
		for _, task := range []*asynq.Task{verify, consistency} {
			if _, err := scheduler.Register(cfg.VerifyCron, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3)); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	w.logger.Info("worker started")

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}
