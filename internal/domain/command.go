package domain

import "github.com/google/uuid"

// Admin console commands arrive as a closed set of typed requests, one per
// exposed operation.

type SubmitProofRequest struct {
	InvoiceNo string
	ProofRef  string
	Actor     string
}

type ApproveRequest struct {
	InvoiceNo string
	Note      string
	Actor     string
}

type RejectRequest struct {
	InvoiceNo string
	Note      string
	Actor     string
}

type ExpireRequest struct {
	InvoiceNo string
	Actor     string
}

type CancelRequest struct {
	InvoiceNo string
	Note      string
	Actor     string
}

type ManualRetryRequest struct {
	JobID uuid.UUID
	Actor string
}

type CancelJobRequest struct {
	JobID uuid.UUID
	Actor string
}

type BulkRetryRequest struct {
	JobIDs []uuid.UUID
	Actor  string
}

type BulkCancelRequest struct {
	JobIDs []uuid.UUID
	Actor  string
}

// BulkResult reports how many rows a bulk operation actually mutated.
// Ineligible or locked rows are skipped, not counted.
type BulkResult struct {
	Affected int
	Skipped  int
}
