package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tokenpad/presale-core/internal/config"
	"github.com/tokenpad/presale-core/internal/domain"
	"github.com/tokenpad/presale-core/internal/repository"
)

func newTestInvoiceService() (*InvoiceService, *repository.MemStore) {
	store := repository.NewMemStore()
	cfg := &config.Config{
		LeaseDuration: 5 * time.Minute,
		InvoiceTTL:    0,
	}
	return NewInvoiceService(store, cfg, nil), store
}

func createTestInvoice(t *testing.T, s *InvoiceService, invoiceNo string) *domain.Invoice {
	t.Helper()
	inv, err := s.CreateInvoice(context.Background(), &domain.Invoice{
		InvoiceNo:     invoiceNo,
		BuyerID:       "u42",
		BuyerEmail:    "buyer@example.com",
		Stage:         "seed",
		PaymentMethod: "bank_transfer",
	}, "buyer:u42")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func jobCount(t *testing.T, store *repository.MemStore) int {
	t.Helper()
	counts, err := store.JobCountsByStatus(context.Background())
	if err != nil {
		t.Fatalf("job counts: %v", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func TestSubmitProof_EnqueuesOneNotification(t *testing.T) {
	ctx := context.Background()
	s, store := newTestInvoiceService()
	createTestInvoice(t, s, "INV100")

	inv, err := s.SubmitProof(ctx, domain.SubmitProofRequest{
		InvoiceNo: "INV100",
		ProofRef:  "uploads/tx-proof-1.png",
		Actor:     "buyer:u42",
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if inv.Status != domain.InvoiceStatusPendingReview {
		t.Errorf("status = %s, want pending_review", inv.Status)
	}
	if inv.ProofRef != "uploads/tx-proof-1.png" {
		t.Errorf("proof ref = %q", inv.ProofRef)
	}
	if inv.ProofSubmittedAt == nil {
		t.Error("proof submitted timestamp not set")
	}

	if n := jobCount(t, store); n != 1 {
		t.Fatalf("job count = %d, want exactly 1", n)
	}
	stuck, _ := store.StuckJobs(ctx)
	if len(stuck) != 0 {
		t.Errorf("fresh job reported stuck")
	}
}

func TestSubmitProof_RejectedOnPaidInvoice(t *testing.T) {
	ctx := context.Background()
	s, store := newTestInvoiceService()
	createTestInvoice(t, s, "INV100")

	if _, err := s.SubmitProof(ctx, domain.SubmitProofRequest{InvoiceNo: "INV100", ProofRef: "p1", Actor: "buyer:u42"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Approve(ctx, domain.ApproveRequest{InvoiceNo: "INV100", Actor: "admin:1"}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	jobsBefore := jobCount(t, store)
	_, err := s.SubmitProof(ctx, domain.SubmitProofRequest{InvoiceNo: "INV100", ProofRef: "p2", Actor: "buyer:u42"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("submit on paid invoice: err = %v, want ErrInvalidTransition", err)
	}

	status, err := s.InvoiceStatus(ctx, "INV100")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.InvoiceStatusPaid {
		t.Errorf("status = %s, want paid (unchanged)", status)
	}
	if n := jobCount(t, store); n != jobsBefore {
		t.Errorf("job count changed on rejected submission: %d -> %d", jobsBefore, n)
	}
}

func TestApprove_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, store := newTestInvoiceService()
	createTestInvoice(t, s, "INV100")

	if _, err := s.SubmitProof(ctx, domain.SubmitProofRequest{InvoiceNo: "INV100", ProofRef: "p1", Actor: "buyer:u42"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	inv, err := s.Approve(ctx, domain.ApproveRequest{InvoiceNo: "INV100", Note: "verified wire ref", Actor: "admin:1"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if inv.Status != domain.InvoiceStatusPaid {
		t.Errorf("status = %s, want paid", inv.Status)
	}
	if inv.ApprovedAt == nil {
		t.Error("approved timestamp not set")
	}
	jobsAfterFirst := jobCount(t, store)
	if jobsAfterFirst != 2 {
		t.Fatalf("job count = %d, want 2 (submission + approval)", jobsAfterFirst)
	}

	again, err := s.Approve(ctx, domain.ApproveRequest{InvoiceNo: "INV100", Actor: "admin:2"})
	if !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("second approve: err = %v, want ErrAlreadyProcessed", err)
	}
	if again.Status != domain.InvoiceStatusPaid {
		t.Errorf("second approve returned status %s", again.Status)
	}
	if n := jobCount(t, store); n != jobsAfterFirst {
		t.Errorf("second approve enqueued a notification: %d -> %d", jobsAfterFirst, n)
	}
}

func TestReject_AllowsResubmission(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestInvoiceService()
	createTestInvoice(t, s, "INV100")

	if _, err := s.SubmitProof(ctx, domain.SubmitProofRequest{InvoiceNo: "INV100", ProofRef: "p1", Actor: "buyer:u42"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	inv, err := s.Reject(ctx, domain.RejectRequest{InvoiceNo: "INV100", Note: "amount mismatch", Actor: "admin:1"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if inv.Status != domain.InvoiceStatusRejected {
		t.Errorf("status = %s, want rejected", inv.Status)
	}
	if inv.AdminNote != "amount mismatch" {
		t.Errorf("admin note = %q", inv.AdminNote)
	}

	// Rejected invoices accept a fresh proof.
	inv, err = s.SubmitProof(ctx, domain.SubmitProofRequest{InvoiceNo: "INV100", ProofRef: "p2", Actor: "buyer:u42"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if inv.Status != domain.InvoiceStatusPendingReview {
		t.Errorf("status = %s, want pending_review", inv.Status)
	}
	if inv.ProofRef != "p2" {
		t.Errorf("proof ref = %q, want p2", inv.ProofRef)
	}
}

func TestCancel_FromAnyNonTerminalOnly(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestInvoiceService()
	createTestInvoice(t, s, "INV100")

	inv, err := s.Cancel(ctx, domain.CancelRequest{InvoiceNo: "INV100", Note: "duplicate order", Actor: "admin:1"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if inv.Status != domain.InvoiceStatusCancelled {
		t.Errorf("status = %s, want cancelled", inv.Status)
	}

	if _, err := s.Cancel(ctx, domain.CancelRequest{InvoiceNo: "INV100", Actor: "admin:1"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("cancel on cancelled invoice: err = %v, want ErrInvalidTransition", err)
	}
}

func TestExpireStale_SweepsUnpaidInvoices(t *testing.T) {
	ctx := context.Background()
	s, store := newTestInvoiceService()
	createTestInvoice(t, s, "INV100")
	createTestInvoice(t, s, "INV101")

	// INV101 moves on before the sweep and must be left alone.
	if _, err := s.SubmitProof(ctx, domain.SubmitProofRequest{InvoiceNo: "INV101", ProofRef: "p1", Actor: "buyer:u42"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Zero TTL makes every remaining UNPAID invoice stale.
	n, err := s.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d invoices, want 1", n)
	}

	status, _ := s.InvoiceStatus(ctx, "INV100")
	if status != domain.InvoiceStatusExpired {
		t.Errorf("INV100 status = %s, want expired", status)
	}
	status, _ = s.InvoiceStatus(ctx, "INV101")
	if status != domain.InvoiceStatusPendingReview {
		t.Errorf("INV101 status = %s, want pending_review", status)
	}

	entries, err := store.ListAudit(ctx, "INV100", 10)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) == 0 || entries[0].Action != domain.AuditExpired {
		t.Errorf("expiry not audited: %+v", entries)
	}
}
