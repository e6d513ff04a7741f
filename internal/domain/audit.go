package domain

import (
	"encoding/json"
	"time"
)

// Audit action types, one per mutating operation.
const (
	AuditInvoiceCreated = "invoice.created"
	AuditProofSubmitted = "invoice.proof_submitted"
	AuditApproved       = "invoice.approved"
	AuditRejected       = "invoice.rejected"
	AuditExpired        = "invoice.expired"
	AuditCancelled      = "invoice.cancelled"
	AuditJobRetried     = "job.retried"
	AuditJobCancelled   = "job.cancelled"
)

// AuditEntry is an append-only record of a mutation. Before and After hold
// JSON snapshots of the target taken inside the mutating transaction.
type AuditEntry struct {
	ID        int64
	Action    string
	Actor     string
	TargetID  string
	Before    json.RawMessage
	After     json.RawMessage
	CreatedAt time.Time
}
