// Package schedule runs recurring background jobs for the lifetime of
// the process. Every job gets its own ticker and goroutine: periods
// never drift by accumulating another job's execution time, and a
// failed run never cancels future firings.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
)

// Job is one recurring task.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler fires jobs on fixed wall-clock periods measured from Run.
type Scheduler struct {
	jobs      []Job
	onFailure func(ctx context.Context, job string, err error)
}

// New validates and collects the job set.
func New(jobs ...Job) (*Scheduler, error) {
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, fmt.Errorf("schedule: job missing name or func")
		}
		if j.Every <= 0 {
			return nil, fmt.Errorf("schedule: job %s has non-positive period", j.Name)
		}
	}
	return &Scheduler{jobs: jobs}, nil
}

// NotifyFailures registers a hook invoked after every failed or
// panicked firing. Must be called before Run.
func (s *Scheduler) NotifyFailures(fn func(ctx context.Context, job string, err error)) {
	s.onFailure = fn
}

// Run blocks until ctx is cancelled. Jobs overlap freely: a slow long
// period job does not delay the short one.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	logger.Info(ctx, "scheduler", "job.registered",
		slog.String("job", job.Name),
		slog.Duration("every", job.Every),
	)

	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "scheduler", "job.stopped",
				slog.String("job", job.Name),
			)
			return
		case <-ticker.C:
			s.fire(ctx, job)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "scheduler", "job.panic",
				slog.String("job", job.Name),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			s.failed(ctx, job.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		logger.Error(ctx, "scheduler", "job.done",
			slog.String("job", job.Name),
			slog.String("outcome", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		s.failed(ctx, job.Name, err)
		return
	}
	logger.Info(ctx, "scheduler", "job.done",
		slog.String("job", job.Name),
		slog.String("outcome", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
}

func (s *Scheduler) failed(ctx context.Context, job string, err error) {
	if s.onFailure == nil {
		return
	}
	s.onFailure(ctx, job, err)
}
