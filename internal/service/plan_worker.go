package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
)

// JobTypePlanDeadline identifies queued planning runs.
const JobTypePlanDeadline = "plan_deadline"

// enqueueWait caps how long a request waits for room on a full queue shard.
const enqueueWait = 2 * time.Second

type jobDispatcher interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type deadlinePlanner interface {
	PlanDeadline(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanResult, error)
}

// PlanDispatcher queues planning runs. All runs of one deadline share a queue key and
// therefore a single worker.
type PlanDispatcher struct {
	queue     jobDispatcher
	validator *validator.Validate
}

// NewPlanDispatcher constructs a dispatcher.
func NewPlanDispatcher(queue jobDispatcher, validate *validator.Validate) *PlanDispatcher {
	if validate == nil {
		validate = validator.New()
	}
	return &PlanDispatcher{queue: queue, validator: validate}
}

// EnqueuePlan validates the request and hands it to the queue.
func (d *PlanDispatcher) EnqueuePlan(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanAccepted, error) {
	if err := d.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan request")
	}
	if d.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "plan queue unavailable")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Key:     req.DeadlineID,
		Type:    JobTypePlanDeadline,
		Payload: req,
	}
	waitCtx, cancel := context.WithTimeout(ctx, enqueueWait)
	defer cancel()
	if err := d.queue.Enqueue(waitCtx, job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.WrapAs(appErrors.ErrQueueFull, err, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue planning run")
	}
	return &dto.PlanAccepted{DeadlineID: req.DeadlineID, Status: "queued"}, nil
}

// PlanWorker runs queued planning jobs.
type PlanWorker struct {
	planner deadlinePlanner
	logger  *zap.Logger
}

// NewPlanWorker constructs a worker.
func NewPlanWorker(planner deadlinePlanner, logger *zap.Logger) *PlanWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanWorker{planner: planner, logger: logger}
}

// Handle processes a queue job. Only lock contention is retried.
func (w *PlanWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.PlanDeadlineRequest)
	if !ok {
		return jobs.Permanent(fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload))
	}
	result, err := w.planner.PlanDeadline(ctx, req)
	if err != nil {
		if errors.Is(err, appErrors.ErrLocked) {
			return err
		}
		return jobs.Permanent(err)
	}
	w.logger.Sugar().Infow("queued planning run finished",
		"job_id", job.ID,
		"deadline_id", req.DeadlineID,
		"sessions", result.SessionsCreated,
		"shortfall_minutes", result.ShortfallMinutes,
	)
	return nil
}
