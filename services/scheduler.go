package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Task is a named job run on a cron spec.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Scheduler owns a cron instance. A task still running when its next tick
// comes is skipped, and a panicking task is recovered.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "scheduler")}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers the task. Invalid specs are reported as configuration errors.
func (s *Scheduler) Add(t Task) error {
	_, err := s.cron.AddFunc(t.Spec, func() {
		slog.Debug("task triggered", "task", t.Name)
		t.Run(s.ctx)
	})
	if err != nil {
		return newError(ErrConfiguration, err, "schedule %q of task %s", t.Spec, t.Name)
	}
	slog.Info("task scheduled", "task", t.Name, "spec", t.Spec)
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits until they have returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Len is the number of registered tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
