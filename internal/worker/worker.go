// Package worker implements the stage execution loop shared by every queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Task is one stage invocation handed to a Handler.
type Task struct {
	Envelope pipeline.Envelope
	// Final is true when a failure of this attempt will not be retried.
	Final bool
}

// Handler executes one task. A non-nil result feeds the next chain link.
type Handler func(ctx context.Context, task Task) (any, error)

// Registry maps task names to handlers.
type Registry map[pipeline.TaskName]Handler

// Register binds h to task.
func (r Registry) Register(task pipeline.TaskName, h Handler) {
	r[task] = h
}

// AbortFunc is invoked with the run id when a chained task ends the chain early.
type AbortFunc func(ctx context.Context, runID string)

// Worker consumes one queue and runs the registered handlers.
type Worker struct {
	queue    pipeline.Queue
	name     pipeline.QueueName
	handlers Registry
	policy   pipeline.RetryPolicy
	onAbort  AbortFunc
	logger   *zap.Logger
}

// New constructs a Worker for the named queue.
func New(
	queue pipeline.Queue,
	name pipeline.QueueName,
	handlers Registry,
	policy pipeline.RetryPolicy,
	onAbort AbortFunc,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = pipeline.NewExponentialRetryPolicy(0, 0, 0)
	}
	return &Worker{
		queue:    queue,
		name:     name,
		handlers: handlers,
		policy:   policy,
		onAbort:  onAbort,
		logger:   logger.With(zap.String("queue", string(name))),
	}
}

// Run blocks, consuming deliveries until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		delivery, err := w.queue.Dequeue(ctx, w.name)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, pipeline.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if !w.process(ctx, delivery.Envelope) {
			// Left unacked so the transport redelivers it.
			continue
		}
		if err := delivery.Ack(ctx); err != nil {
			w.logger.Warn("ack failed", zap.String("envelope_id", delivery.Envelope.ID), zap.Error(err))
		}
	}
}

// process runs one envelope and reports whether it may be acknowledged.
func (w *Worker) process(ctx context.Context, env pipeline.Envelope) bool {
	logger := w.logger.With(
		zap.String("task", string(env.Task)),
		zap.String("envelope_id", env.ID),
		zap.Int("attempt", env.Attempt),
	)
	if env.RunID != "" {
		logger = logger.With(zap.String("run_id", env.RunID))
	}

	handler, ok := w.handlers[env.Task]
	if !ok {
		logger.Error("no handler registered")
		metrics.ObserveStage(string(env.Task), metrics.OutcomeFailed, 0)
		w.abort(ctx, env)
		return true
	}

	metrics.IncActiveWorkers()
	start := time.Now()
	result, err := w.invoke(ctx, handler, Task{Envelope: env, Final: w.policy.Final(env.Attempt)})
	duration := time.Since(start)
	metrics.DecActiveWorkers()

	if err != nil {
		return w.handleFailure(ctx, logger, env, err, duration)
	}
	metrics.ObserveStage(string(env.Task), metrics.OutcomeSucceeded, duration)
	logger.Debug("task succeeded", zap.Duration("duration", duration))

	next, ok, err := env.Next(result)
	if err != nil {
		logger.Error("build next chain link failed", zap.Error(err))
		w.abort(ctx, env)
		return true
	}
	if !ok {
		return true
	}
	if err := w.queue.Enqueue(ctx, next); err != nil {
		logger.Error("enqueue next chain link failed", zap.String("next", string(next.Task)), zap.Error(err))
		w.abort(ctx, env)
		return true
	}
	logger.Debug("chained next task", zap.String("next", string(next.Task)))
	return true
}

func (w *Worker) handleFailure(
	ctx context.Context,
	logger *zap.Logger,
	env pipeline.Envelope,
	err error,
	duration time.Duration,
) bool {
	if !w.policy.ShouldRetry(err, env.Attempt) {
		metrics.ObserveStage(string(env.Task), metrics.OutcomeFailed, duration)
		logger.Error("task failed", zap.Error(err))
		w.abort(ctx, env)
		return true
	}

	metrics.ObserveStage(string(env.Task), metrics.OutcomeRetried, duration)
	delay := w.policy.Backoff(env.Attempt)
	logger.Warn("task failed, retrying", zap.Duration("backoff", delay), zap.Error(err))
	if !sleep(ctx, delay) {
		return false
	}
	enqErr := w.queue.Enqueue(ctx, env.Retry())
	if enqErr == nil {
		return true
	}
	logger.Error("re-enqueue failed", zap.Error(enqErr), zap.NamedError("task_error", err))
	w.abort(ctx, env)
	return true
}

func (w *Worker) invoke(ctx context.Context, handler Handler, task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pipeline.Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, task)
}

func (w *Worker) abort(ctx context.Context, env pipeline.Envelope) {
	if !env.Chained() || w.onAbort == nil {
		return
	}
	w.onAbort(ctx, env.RunID)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
