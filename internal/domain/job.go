package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSent      JobStatus = "sent"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the queue defines no further transition from s.
// FAILED is terminal for automatic scheduling but can be re-opened by a
// manual retry.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSent || s == JobStatusCancelled
}

// Notification template ids, one per invoice lifecycle event.
const (
	TemplatePaymentSubmitted = "payment_submitted"
	TemplateInvoiceApproved  = "invoice_approved"
	TemplateInvoiceRejected  = "invoice_rejected"
	TemplateInvoiceExpired   = "invoice_expired"
	TemplateInvoiceCancelled = "invoice_cancelled"
)

type NotificationJob struct {
	ID            uuid.UUID
	Recipient     string
	TemplateID    string
	Vars          map[string]string
	Status        JobStatus
	Attempts      int
	NextAttemptAt time.Time
	LastAttemptAt *time.Time
	LastError     string
	LockedBy      string
	LockedUntil   *time.Time
	Lease         time.Duration
	CreatedAt     time.Time
}

// Locked reports whether the job is held under an unexpired lease at now.
func (j *NotificationJob) Locked(now time.Time) bool {
	return j.LockedBy != "" && j.LockedUntil != nil && j.LockedUntil.After(now)
}

// Stuck reports whether the job's lease ran out without the job resolving
// to a terminal state. A stuck job is claimable again; the flag is a
// read-only health indicator for the queue dashboard.
func (j *NotificationJob) Stuck(now time.Time) bool {
	if j.Status.Terminal() {
		return false
	}
	return j.LockedBy != "" && j.LockedUntil != nil && !j.LockedUntil.After(now)
}
