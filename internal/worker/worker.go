package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tokenpad/presale-core/internal/domain"
	"github.com/tokenpad/presale-core/internal/metrics"
)

// Store is the claim surface a delivery worker needs.
type Store interface {
	ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*domain.NotificationJob, error)
	CompleteJob(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, deliveryErr string, policy domain.RetryPolicy) (*domain.NotificationJob, error)
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, job *domain.NotificationJob) error
}

// Alerter announces operator-relevant events. Optional.
type Alerter interface {
	AlertJobFailed(job *domain.NotificationJob)
	AlertPanic(workerID string, v any)
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	Lease        time.Duration
	Policy       domain.RetryPolicy
	Nudge        <-chan struct{}
	Alerts       Alerter
}

// Pool runs a fixed number of delivery workers. Each worker drains all due
// jobs, then sleeps until the next poll tick or nudge. An empty claim is not
// an error; a failed delivery never stops the loop.
type Pool struct {
	store  Store
	sender Sender
	opts   Options
	prefix string
}

func NewPool(store Store, sender Sender, opts Options) *Pool {
	host, _ := os.Hostname()
	return &Pool{
		store:  store,
		sender: sender,
		opts:   opts,
		prefix: fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// Run blocks until ctx is cancelled and all workers have drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		workerID := fmt.Sprintf("%s-w%d", p.prefix, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, workerID)
		}()
	}
	slog.Info("delivery workers started", "count", p.opts.Workers)
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx, workerID)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.opts.Nudge:
		}
	}
}

// drain claims and processes jobs until none are due.
func (p *Pool) drain(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.store.ClaimNext(ctx, workerID, p.opts.Lease)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJobAvailable) && ctx.Err() == nil {
				slog.Error("claim failed", "worker", workerID, "error", err)
			}
			return
		}
		p.process(ctx, workerID, job)
	}
}

func (p *Pool) process(ctx context.Context, workerID string, job *domain.NotificationJob) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered in delivery",
				"worker", workerID,
				"job_id", job.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			p.fail(ctx, job, fmt.Sprintf("panic: %v", r))
			if p.opts.Alerts != nil {
				p.opts.Alerts.AlertPanic(workerID, r)
			}
		}
	}()

	start := time.Now()
	err := p.sender.Send(ctx, job)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Warn("delivery attempt failed",
			"worker", workerID,
			"job_id", job.ID,
			"template", job.TemplateID,
			"attempt", job.Attempts+1,
			"error", err,
		)
		p.fail(ctx, job, err.Error())
		return
	}

	if err := p.store.CompleteJob(ctx, job.ID); err != nil {
		slog.Error("complete job", "worker", workerID, "job_id", job.ID, "error", err)
		return
	}
	metrics.JobsDeliveredTotal.Inc()
	slog.Info("notification delivered", "worker", workerID, "job_id", job.ID, "template", job.TemplateID)
}

func (p *Pool) fail(ctx context.Context, job *domain.NotificationJob, msg string) {
	metrics.DeliveryFailuresTotal.Inc()
	after, err := p.store.FailJob(ctx, job.ID, msg, p.opts.Policy)
	if err != nil {
		slog.Error("record delivery failure", "job_id", job.ID, "error", err)
		return
	}
	if after.Status == domain.JobStatusFailed {
		metrics.JobsExhaustedTotal.Inc()
		slog.Error("job attempts exhausted", "job_id", job.ID, "attempts", after.Attempts, "last_error", after.LastError)
		if p.opts.Alerts != nil {
			p.opts.Alerts.AlertJobFailed(after)
		}
	}
}
