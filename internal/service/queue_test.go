package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tokenpad/presale-core/internal/domain"
	"github.com/tokenpad/presale-core/internal/repository"
)

func newTestQueueService() (*QueueService, *repository.MemStore) {
	store := repository.NewMemStore()
	return NewQueueService(store, nil), store
}

func TestManualRetry_OnlyFromFailedOrCancelled(t *testing.T) {
	ctx := context.Background()
	s, store := newTestQueueService()
	policy := domain.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Minute, MaxDelay: time.Hour}

	job, err := s.Enqueue(ctx, repository.JobDraft{
		Recipient:  "buyer@example.com",
		TemplateID: domain.TemplateInvoiceApproved,
		Lease:      time.Minute,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := s.ManualRetry(ctx, domain.ManualRetryRequest{JobID: job.ID, Actor: "admin:1"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("retry on pending: err = %v, want ErrInvalidTransition", err)
	}

	if _, err := store.ClaimNext(ctx, "w1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.FailJob(ctx, job.ID, "provider 500", policy); err != nil {
		t.Fatalf("fail: %v", err)
	}

	after, err := s.ManualRetry(ctx, domain.ManualRetryRequest{JobID: job.ID, Actor: "admin:1"})
	if err != nil {
		t.Fatalf("retry on failed: %v", err)
	}
	if after.Status != domain.JobStatusPending || after.Attempts != 0 {
		t.Errorf("after retry: status=%s attempts=%d, want pending/0", after.Status, after.Attempts)
	}
}

func TestBulkRetry_ReportsAffectedCount(t *testing.T) {
	ctx := context.Background()
	s, store := newTestQueueService()
	policy := domain.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Minute, MaxDelay: time.Hour}

	var failedIDs []uuid.UUID
	for i := 0; i < 2; i++ {
		job, err := s.Enqueue(ctx, repository.JobDraft{
			Recipient:  "buyer@example.com",
			TemplateID: domain.TemplateInvoiceRejected,
			Lease:      time.Minute,
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if _, err := store.ClaimNext(ctx, "w1", time.Minute); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := store.FailJob(ctx, job.ID, "boom", policy); err != nil {
			t.Fatalf("fail: %v", err)
		}
		failedIDs = append(failedIDs, job.ID)
	}

	pendingJob, err := s.Enqueue(ctx, repository.JobDraft{
		Recipient:  "buyer@example.com",
		TemplateID: domain.TemplateInvoiceApproved,
		Lease:      time.Minute,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ids := append(append([]uuid.UUID{}, failedIDs...), pendingJob.ID, uuid.New())
	res, err := s.BulkRetry(ctx, domain.BulkRetryRequest{JobIDs: ids, Actor: "admin:1"})
	if err != nil {
		t.Fatalf("bulk retry: %v", err)
	}
	if res.Affected != 2 {
		t.Errorf("affected = %d, want 2", res.Affected)
	}
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2 (pending + unknown id)", res.Skipped)
	}
}

func TestBulkCancel_SkipsLeasedJobs(t *testing.T) {
	ctx := context.Background()
	s, store := newTestQueueService()

	inFlight, err := s.Enqueue(ctx, repository.JobDraft{
		Recipient:  "buyer@example.com",
		TemplateID: domain.TemplatePaymentSubmitted,
		Lease:      5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "w1", 5*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	idle, err := s.Enqueue(ctx, repository.JobDraft{
		Recipient:  "buyer@example.com",
		TemplateID: domain.TemplatePaymentSubmitted,
		Lease:      5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := s.BulkCancel(ctx, domain.BulkCancelRequest{JobIDs: []uuid.UUID{inFlight.ID, idle.ID}, Actor: "admin:1"})
	if err != nil {
		t.Fatalf("bulk cancel: %v", err)
	}
	if res.Affected != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 affected (idle), 1 skipped (in flight)", res)
	}

	got, _ := s.GetJob(ctx, inFlight.ID)
	if got.Status != domain.JobStatusPending {
		t.Errorf("in-flight job mutated: %s", got.Status)
	}
	got, _ = s.GetJob(ctx, idle.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("idle job status = %s, want cancelled", got.Status)
	}
}

func TestCountsByStatus_Snapshot(t *testing.T) {
	ctx := context.Background()
	s, store := newTestQueueService()

	a, _ := s.Enqueue(ctx, repository.JobDraft{Recipient: "x@example.com", TemplateID: domain.TemplatePaymentSubmitted, Lease: time.Minute})
	s.Enqueue(ctx, repository.JobDraft{Recipient: "y@example.com", TemplateID: domain.TemplatePaymentSubmitted, Lease: time.Minute})
	if err := store.CompleteJob(ctx, a.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	counts, err := s.CountsByStatus(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[domain.JobStatusPending] != 1 || counts[domain.JobStatusSent] != 1 {
		t.Errorf("counts = %+v, want 1 pending / 1 sent", counts)
	}
}
