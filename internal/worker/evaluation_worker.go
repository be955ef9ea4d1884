package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/pkg/jobs"
)

// JobTypeEvaluate is the job type for a single (student, chatbot) re-evaluation.
const JobTypeEvaluate = "evaluate"

type targetEvaluator interface {
	EvaluateTarget(ctx context.Context, target models.EvaluationTarget) error
	SweepPending(ctx context.Context) (int, error)
}

// Config tunes the worker pool and the pending sweep.
type Config struct {
	Workers       int
	Retries       int
	RetryDelay    time.Duration
	SweepSchedule string
}

// EvaluationWorker retries failed goal evaluations in the background. Jobs that exhaust their retries
// stay pending in the database and are picked up by the periodic sweep.
type EvaluationWorker struct {
	evaluator targetEvaluator
	queue     *jobs.Queue
	cron      *cron.Cron
	schedule  string
	logger    *zap.Logger
}

// NewEvaluationWorker builds the worker. Nothing runs until Start.
func NewEvaluationWorker(evaluator targetEvaluator, cfg Config, logger *zap.Logger) *EvaluationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &EvaluationWorker{
		evaluator: evaluator,
		schedule:  cfg.SweepSchedule,
		logger:    logger,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	w.queue = jobs.NewQueue("evaluations", w.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		MaxDelay:   30 * time.Minute,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			logger.Warn("evaluation left pending for sweep", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	return w
}

// Start launches the queue workers and, when a schedule is configured, the sweep.
func (w *EvaluationWorker) Start(ctx context.Context) error {
	w.queue.Start(ctx)
	if w.schedule == "" {
		return nil
	}
	if _, err := w.cron.AddFunc(w.schedule, func() { w.Sweep(ctx) }); err != nil {
		w.queue.Stop()
		return fmt.Errorf("schedule evaluation sweep %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.logger.Info("evaluation sweep scheduled", zap.String("schedule", w.schedule))
	return nil
}

// Stop waits for a running sweep, then drains the queue workers.
func (w *EvaluationWorker) Stop() {
	<-w.cron.Stop().Done()
	w.queue.Stop()
}

// ScheduleEvaluation queues a retry for target.
func (w *EvaluationWorker) ScheduleEvaluation(ctx context.Context, target models.EvaluationTarget) error {
	return w.queue.Enqueue(ctx, jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeEvaluate,
		Payload: target,
	})
}

// Sweep re-evaluates every pending pair once.
func (w *EvaluationWorker) Sweep(ctx context.Context) {
	completed, err := w.evaluator.SweepPending(ctx)
	if err != nil {
		w.logger.Error("evaluation sweep failed", zap.Int("completed", completed), zap.Error(err))
	}
}

func (w *EvaluationWorker) handle(ctx context.Context, job jobs.Job) error {
	target, ok := job.Payload.(models.EvaluationTarget)
	if !ok {
		w.logger.Error("unexpected evaluation payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return w.evaluator.EvaluateTarget(ctx, target)
}
