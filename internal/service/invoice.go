package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokenpad/presale-core/internal/config"
	"github.com/tokenpad/presale-core/internal/domain"
	"github.com/tokenpad/presale-core/internal/metrics"
	"github.com/tokenpad/presale-core/internal/repository"
)

// InvoiceStore is the storage surface the invoice lifecycle needs. Both the
// Postgres store and the in-memory store satisfy it.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *domain.Invoice, actor string) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, invoiceNo string) (*domain.Invoice, error)
	ApplyInvoiceTransition(ctx context.Context, t repository.InvoiceTransition) (*domain.Invoice, error)
	ListStaleUnpaid(ctx context.Context, cutoff time.Time) ([]string, error)
	InvoiceCountsByStatus(ctx context.Context) (map[domain.InvoiceStatus]int, error)
}

// Nudger wakes idle delivery workers after an enqueue. Optional; polling
// alone is sufficient for correctness.
type Nudger interface {
	Nudge(ctx context.Context)
}

type InvoiceService struct {
	store InvoiceStore
	cfg   *config.Config
	nudge Nudger
}

func NewInvoiceService(store InvoiceStore, cfg *config.Config, nudge Nudger) *InvoiceService {
	return &InvoiceService{store: store, cfg: cfg, nudge: nudge}
}

// CreateInvoice registers a purchase intent as a new UNPAID invoice.
func (s *InvoiceService) CreateInvoice(ctx context.Context, inv *domain.Invoice, actor string) (*domain.Invoice, error) {
	if inv.InvoiceNo == "" || inv.BuyerEmail == "" {
		return nil, fmt.Errorf("create invoice: invoice number and buyer email are required")
	}
	created, err := s.store.CreateInvoice(ctx, inv, actor)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return created, nil
}

// SubmitProof records buyer-submitted payment proof and moves the invoice to
// PENDING_REVIEW. Allowed from UNPAID and, for resubmission, from REJECTED.
func (s *InvoiceService) SubmitProof(ctx context.Context, req domain.SubmitProofRequest) (*domain.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, req.InvoiceNo)
	if err != nil {
		return nil, fmt.Errorf("submit proof: %w", err)
	}
	if !domain.CanTransition(inv.Status, domain.InvoiceStatusPendingReview) {
		return nil, domain.ErrInvalidTransition
	}
	return s.transition(ctx, repository.InvoiceTransition{
		InvoiceNo: req.InvoiceNo,
		Expect:    inv.Status,
		To:        domain.InvoiceStatusPendingReview,
		ProofRef:  req.ProofRef,
		Action:    domain.AuditProofSubmitted,
		Actor:     req.Actor,
		Notify:    s.notification(inv, domain.TemplatePaymentSubmitted),
	})
}

// Approve confirms a reviewed payment. Re-approving an already PAID invoice
// returns ErrAlreadyProcessed and enqueues nothing.
func (s *InvoiceService) Approve(ctx context.Context, req domain.ApproveRequest) (*domain.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, req.InvoiceNo)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	if inv.Status == domain.InvoiceStatusPaid {
		return inv, domain.ErrAlreadyProcessed
	}
	if inv.Status != domain.InvoiceStatusPendingReview {
		return nil, domain.ErrInvalidTransition
	}
	return s.transition(ctx, repository.InvoiceTransition{
		InvoiceNo: req.InvoiceNo,
		Expect:    domain.InvoiceStatusPendingReview,
		To:        domain.InvoiceStatusPaid,
		AdminNote: req.Note,
		Action:    domain.AuditApproved,
		Actor:     req.Actor,
		Notify:    s.notification(inv, domain.TemplateInvoiceApproved),
	})
}

func (s *InvoiceService) Reject(ctx context.Context, req domain.RejectRequest) (*domain.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, req.InvoiceNo)
	if err != nil {
		return nil, fmt.Errorf("reject: %w", err)
	}
	if inv.Status != domain.InvoiceStatusPendingReview {
		return nil, domain.ErrInvalidTransition
	}
	return s.transition(ctx, repository.InvoiceTransition{
		InvoiceNo: req.InvoiceNo,
		Expect:    domain.InvoiceStatusPendingReview,
		To:        domain.InvoiceStatusRejected,
		AdminNote: req.Note,
		Action:    domain.AuditRejected,
		Actor:     req.Actor,
		Notify:    s.notification(inv, domain.TemplateInvoiceRejected),
	})
}

func (s *InvoiceService) Expire(ctx context.Context, req domain.ExpireRequest) (*domain.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, req.InvoiceNo)
	if err != nil {
		return nil, fmt.Errorf("expire: %w", err)
	}
	if !domain.CanTransition(inv.Status, domain.InvoiceStatusExpired) {
		return nil, domain.ErrInvalidTransition
	}
	return s.transition(ctx, repository.InvoiceTransition{
		InvoiceNo: req.InvoiceNo,
		Expect:    inv.Status,
		To:        domain.InvoiceStatusExpired,
		Action:    domain.AuditExpired,
		Actor:     req.Actor,
		Notify:    s.notification(inv, domain.TemplateInvoiceExpired),
	})
}

// Cancel is the admin override; allowed from any non-terminal status.
func (s *InvoiceService) Cancel(ctx context.Context, req domain.CancelRequest) (*domain.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, req.InvoiceNo)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if !domain.CanTransition(inv.Status, domain.InvoiceStatusCancelled) {
		return nil, domain.ErrInvalidTransition
	}
	return s.transition(ctx, repository.InvoiceTransition{
		InvoiceNo: req.InvoiceNo,
		Expect:    inv.Status,
		To:        domain.InvoiceStatusCancelled,
		AdminNote: req.Note,
		Action:    domain.AuditCancelled,
		Actor:     req.Actor,
		Notify:    s.notification(inv, domain.TemplateInvoiceCancelled),
	})
}

// InvoiceStatus is the buyer-facing snapshot: only the current status.
func (s *InvoiceService) InvoiceStatus(ctx context.Context, invoiceNo string) (domain.InvoiceStatus, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceNo)
	if err != nil {
		return "", fmt.Errorf("invoice status: %w", err)
	}
	return inv.Status, nil
}

func (s *InvoiceService) CountsByStatus(ctx context.Context) (map[domain.InvoiceStatus]int, error) {
	return s.store.InvoiceCountsByStatus(ctx)
}

// ExpireStale expires UNPAID invoices older than the configured TTL.
// Invoices that changed status between listing and transition are skipped;
// the next sweep re-evaluates them.
func (s *InvoiceService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.InvoiceTTL)
	nos, err := s.store.ListStaleUnpaid(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire stale: %w", err)
	}

	expired := 0
	for _, no := range nos {
		_, err := s.Expire(ctx, domain.ExpireRequest{InvoiceNo: no, Actor: config.SystemActor})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConcurrentModification):
			// Raced with a proof submission or an admin action.
		default:
			return expired, err
		}
	}
	return expired, nil
}

func (s *InvoiceService) transition(ctx context.Context, t repository.InvoiceTransition) (*domain.Invoice, error) {
	inv, err := s.store.ApplyInvoiceTransition(ctx, t)
	if err != nil {
		return nil, err
	}
	if t.Notify != nil {
		metrics.JobsEnqueuedTotal.Inc()
		if s.nudge != nil {
			s.nudge.Nudge(ctx)
		}
	}
	return inv, nil
}

func (s *InvoiceService) notification(inv *domain.Invoice, templateID string) *repository.JobDraft {
	return &repository.JobDraft{
		Recipient:  inv.BuyerEmail,
		TemplateID: templateID,
		Vars: map[string]string{
			"invoice_no":     inv.InvoiceNo,
			"buyer_id":       inv.BuyerID,
			"stage":          inv.Stage,
			"token_amount":   inv.TokenAmount.String(),
			"total_usd":      inv.TotalUSD.StringFixed(2),
			"total_eur":      inv.TotalEUR.StringFixed(2),
			"payment_method": inv.PaymentMethod,
		},
		Lease: s.cfg.LeaseDuration,
	}
}
