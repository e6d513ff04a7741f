package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tokenpad/presale-core/internal/domain"
)

// MemStore is an in-memory Store with the same transition semantics,
// including lease arithmetic and compare-and-swap failures. It backs the
// package tests across the module.
type MemStore struct {
	mu         sync.Mutex
	now        func() time.Time
	invoiceSeq int64
	auditSeq   int64
	invoices   map[string]*domain.Invoice
	jobs       map[uuid.UUID]*domain.NotificationJob
	audit      []domain.AuditEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		now:      time.Now,
		invoices: make(map[string]*domain.Invoice),
		jobs:     make(map[uuid.UUID]*domain.NotificationJob),
	}
}

func cloneInvoice(inv *domain.Invoice) *domain.Invoice {
	c := *inv
	return &c
}

func cloneJob(j *domain.NotificationJob) *domain.NotificationJob {
	c := *j
	if j.Vars != nil {
		c.Vars = make(map[string]string, len(j.Vars))
		for k, v := range j.Vars {
			c.Vars[k] = v
		}
	}
	return &c
}

func (m *MemStore) appendAudit(action, actor, targetID string, before, after any) {
	m.auditSeq++
	e := domain.AuditEntry{
		ID:        m.auditSeq,
		Action:    action,
		Actor:     actor,
		TargetID:  targetID,
		CreatedAt: m.now(),
	}
	if before != nil {
		e.Before, _ = json.Marshal(before)
	}
	if after != nil {
		e.After, _ = json.Marshal(after)
	}
	m.audit = append(m.audit, e)
}

func (m *MemStore) CreateInvoice(_ context.Context, inv *domain.Invoice, actor string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[inv.InvoiceNo]; ok {
		return nil, domain.ErrDuplicateInvoice
	}
	m.invoiceSeq++
	created := cloneInvoice(inv)
	created.ID = m.invoiceSeq
	created.Status = domain.InvoiceStatusUnpaid
	created.CreatedAt = m.now()
	m.invoices[created.InvoiceNo] = created
	m.appendAudit(domain.AuditInvoiceCreated, actor, created.InvoiceNo, nil, created)
	return cloneInvoice(created), nil
}

func (m *MemStore) GetInvoice(_ context.Context, invoiceNo string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceNo]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *MemStore) ApplyInvoiceTransition(_ context.Context, t InvoiceTransition) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[t.InvoiceNo]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	if inv.Status != t.Expect {
		return nil, domain.ErrConcurrentModification
	}

	before := cloneInvoice(inv)
	now := m.now()
	inv.Status = t.To
	if t.ProofRef != "" {
		inv.ProofRef = t.ProofRef
	}
	if t.AdminNote != "" {
		inv.AdminNote = t.AdminNote
	}
	switch t.To {
	case domain.InvoiceStatusPendingReview:
		ts := now
		inv.ProofSubmittedAt = &ts
	case domain.InvoiceStatusPaid:
		ts := now
		inv.ApprovedAt = &ts
	}

	if t.Notify != nil {
		m.insertJobLocked(*t.Notify)
	}
	m.appendAudit(t.Action, t.Actor, t.InvoiceNo, before, inv)
	return cloneInvoice(inv), nil
}

func (m *MemStore) ListStaleUnpaid(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var nos []string
	for no, inv := range m.invoices {
		if inv.Status == domain.InvoiceStatusUnpaid && inv.CreatedAt.Before(cutoff) {
			nos = append(nos, no)
		}
	}
	return nos, nil
}

func (m *MemStore) InvoiceCountsByStatus(_ context.Context) (map[domain.InvoiceStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.InvoiceStatus]int)
	for _, inv := range m.invoices {
		counts[inv.Status]++
	}
	return counts, nil
}

func (m *MemStore) insertJobLocked(d JobDraft) *domain.NotificationJob {
	j := &domain.NotificationJob{
		ID:            uuid.New(),
		Recipient:     d.Recipient,
		TemplateID:    d.TemplateID,
		Vars:          d.Vars,
		Status:        domain.JobStatusPending,
		NextAttemptAt: m.now(),
		Lease:         d.Lease,
		CreatedAt:     m.now(),
	}
	m.jobs[j.ID] = j
	return j
}

func (m *MemStore) EnqueueJob(_ context.Context, d JobDraft) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneJob(m.insertJobLocked(d)), nil
}

func (m *MemStore) GetJob(_ context.Context, id uuid.UUID) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (m *MemStore) ClaimNext(_ context.Context, workerID string, lease time.Duration) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var best *domain.NotificationJob
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusPending || j.NextAttemptAt.After(now) || j.Locked(now) {
			continue
		}
		if best == nil || j.NextAttemptAt.Before(best.NextAttemptAt) {
			best = j
		}
	}
	if best == nil {
		return nil, domain.ErrNoJobAvailable
	}

	until := now.Add(lease)
	best.LockedBy = workerID
	best.LockedUntil = &until
	best.Lease = lease
	return cloneJob(best), nil
}

func (m *MemStore) CompleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status.Terminal() {
		return nil
	}
	now := m.now()
	j.Status = domain.JobStatusSent
	j.LockedBy = ""
	j.LockedUntil = nil
	j.LastAttemptAt = &now
	return nil
}

func (m *MemStore) FailJob(_ context.Context, id uuid.UUID, deliveryErr string, policy domain.RetryPolicy) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return cloneJob(j), nil
	}

	now := m.now()
	j.Attempts++
	j.LastError = deliveryErr
	j.LastAttemptAt = &now
	j.LockedBy = ""
	j.LockedUntil = nil
	if j.Attempts >= policy.MaxAttempts {
		j.Status = domain.JobStatusFailed
	} else {
		j.Status = domain.JobStatusPending
		j.NextAttemptAt = now.Add(policy.Delay(j.Attempts))
	}
	return cloneJob(j), nil
}

func (m *MemStore) RetryJob(_ context.Context, id uuid.UUID, actor string) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.Status != domain.JobStatusFailed && j.Status != domain.JobStatusCancelled {
		return nil, domain.ErrInvalidTransition
	}

	before := cloneJob(j)
	j.Status = domain.JobStatusPending
	j.Attempts = 0
	j.NextAttemptAt = m.now()
	j.LastError = ""
	j.LockedBy = ""
	j.LockedUntil = nil
	m.appendAudit(domain.AuditJobRetried, actor, id.String(), before, j)
	return cloneJob(j), nil
}

func (m *MemStore) CancelJob(_ context.Context, id uuid.UUID, actor string) (*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.Status != domain.JobStatusPending {
		return nil, domain.ErrInvalidTransition
	}
	if j.Locked(m.now()) {
		return nil, domain.ErrJobLocked
	}

	before := cloneJob(j)
	j.Status = domain.JobStatusCancelled
	j.LockedBy = ""
	j.LockedUntil = nil
	m.appendAudit(domain.AuditJobCancelled, actor, id.String(), before, j)
	return cloneJob(j), nil
}

func (m *MemStore) BulkRetryJobs(ctx context.Context, ids []uuid.UUID, actor string) (domain.BulkResult, error) {
	var res domain.BulkResult
	for _, id := range ids {
		if _, err := m.RetryJob(ctx, id, actor); err != nil {
			res.Skipped++
			continue
		}
		res.Affected++
	}
	return res, nil
}

func (m *MemStore) BulkCancelJobs(ctx context.Context, ids []uuid.UUID, actor string) (domain.BulkResult, error) {
	var res domain.BulkResult
	for _, id := range ids {
		if _, err := m.CancelJob(ctx, id, actor); err != nil {
			res.Skipped++
			continue
		}
		res.Affected++
	}
	return res, nil
}

func (m *MemStore) JobCountsByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.JobStatus]int)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *MemStore) StuckJobs(_ context.Context) ([]*domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var jobs []*domain.NotificationJob
	for _, j := range m.jobs {
		if j.Stuck(now) {
			jobs = append(jobs, j)
		}
	}
	out := make([]*domain.NotificationJob, len(jobs))
	for i, j := range jobs {
		out[i] = cloneJob(j)
	}
	return out, nil
}

func (m *MemStore) ListAudit(_ context.Context, targetID string, limit int) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []domain.AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if targetID != "" && m.audit[i].TargetID != targetID {
			continue
		}
		entries = append(entries, m.audit[i])
	}
	return entries, nil
}
