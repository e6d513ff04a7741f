package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tokenpad/presale-core/internal/domain"
	"github.com/tokenpad/presale-core/internal/metrics"
	"github.com/tokenpad/presale-core/internal/repository"
)

// JobStore is the queue surface the admin operations and the dispatcher
// need.
type JobStore interface {
	EnqueueJob(ctx context.Context, d repository.JobDraft) (*domain.NotificationJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.NotificationJob, error)
	RetryJob(ctx context.Context, id uuid.UUID, actor string) (*domain.NotificationJob, error)
	CancelJob(ctx context.Context, id uuid.UUID, actor string) (*domain.NotificationJob, error)
	BulkRetryJobs(ctx context.Context, ids []uuid.UUID, actor string) (domain.BulkResult, error)
	BulkCancelJobs(ctx context.Context, ids []uuid.UUID, actor string) (domain.BulkResult, error)
	JobCountsByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
	StuckJobs(ctx context.Context) ([]*domain.NotificationJob, error)
	ListAudit(ctx context.Context, targetID string, limit int) ([]domain.AuditEntry, error)
}

type QueueService struct {
	store JobStore
	nudge Nudger
}

func NewQueueService(store JobStore, nudge Nudger) *QueueService {
	return &QueueService{store: store, nudge: nudge}
}

// Enqueue inserts a PENDING job due immediately.
func (s *QueueService) Enqueue(ctx context.Context, d repository.JobDraft) (*domain.NotificationJob, error) {
	job, err := s.store.EnqueueJob(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	metrics.JobsEnqueuedTotal.Inc()
	if s.nudge != nil {
		s.nudge.Nudge(ctx)
	}
	return job, nil
}

func (s *QueueService) GetJob(ctx context.Context, id uuid.UUID) (*domain.NotificationJob, error) {
	return s.store.GetJob(ctx, id)
}

// ManualRetry re-opens a FAILED or CANCELLED job.
func (s *QueueService) ManualRetry(ctx context.Context, req domain.ManualRetryRequest) (*domain.NotificationJob, error) {
	job, err := s.store.RetryJob(ctx, req.JobID, req.Actor)
	if err != nil {
		return nil, err
	}
	if s.nudge != nil {
		s.nudge.Nudge(ctx)
	}
	return job, nil
}

// CancelJob removes a PENDING job from future claims. Jobs in flight under
// an unexpired lease are rejected with ErrJobLocked.
func (s *QueueService) CancelJob(ctx context.Context, req domain.CancelJobRequest) (*domain.NotificationJob, error) {
	return s.store.CancelJob(ctx, req.JobID, req.Actor)
}

func (s *QueueService) BulkRetry(ctx context.Context, req domain.BulkRetryRequest) (domain.BulkResult, error) {
	res, err := s.store.BulkRetryJobs(ctx, req.JobIDs, req.Actor)
	if err != nil {
		return res, fmt.Errorf("bulk retry: %w", err)
	}
	if res.Affected > 0 && s.nudge != nil {
		s.nudge.Nudge(ctx)
	}
	return res, nil
}

func (s *QueueService) BulkCancel(ctx context.Context, req domain.BulkCancelRequest) (domain.BulkResult, error) {
	res, err := s.store.BulkCancelJobs(ctx, req.JobIDs, req.Actor)
	if err != nil {
		return res, fmt.Errorf("bulk cancel: %w", err)
	}
	return res, nil
}

// CountsByStatus is the queue dashboard snapshot.
func (s *QueueService) CountsByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	return s.store.JobCountsByStatus(ctx)
}

// StuckJobs lists jobs whose lease expired without resolution.
func (s *QueueService) StuckJobs(ctx context.Context) ([]*domain.NotificationJob, error) {
	return s.store.StuckJobs(ctx)
}

// RefreshHealth updates the stuck-job gauge. Called periodically from main.
func (s *QueueService) RefreshHealth(ctx context.Context) error {
	stuck, err := s.store.StuckJobs(ctx)
	if err != nil {
		return fmt.Errorf("refresh health: %w", err)
	}
	metrics.StuckJobs.Set(float64(len(stuck)))
	return nil
}

// AuditTrail returns recent audit entries, optionally filtered by target.
func (s *QueueService) AuditTrail(ctx context.Context, targetID string, limit int) ([]domain.AuditEntry, error) {
	return s.store.ListAudit(ctx, targetID, limit)
}
