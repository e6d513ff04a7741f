package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPendingReview InvoiceStatus = "pending_review"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusRejected      InvoiceStatus = "rejected"
	InvoiceStatusExpired       InvoiceStatus = "expired"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

// Terminal reports whether no further transition is defined from s.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case InvoiceStatusPaid, InvoiceStatusExpired, InvoiceStatusCancelled:
		return true
	}
	return false
}

// invoiceEdges lists the allowed status transitions. Cancellation from any
// non-terminal status is handled separately in CanTransition.
var invoiceEdges = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusUnpaid:        {InvoiceStatusPendingReview, InvoiceStatusExpired},
	InvoiceStatusPendingReview: {InvoiceStatusPaid, InvoiceStatusRejected},
	InvoiceStatusRejected:      {InvoiceStatusPendingReview},
}

// CanTransition reports whether the edge from -> to is allowed.
func CanTransition(from, to InvoiceStatus) bool {
	if to == InvoiceStatusCancelled {
		return !from.Terminal()
	}
	for _, next := range invoiceEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Invoice struct {
	ID               int64
	InvoiceNo        string
	BuyerID          string
	BuyerEmail       string
	Stage            string
	TokenAmount      decimal.Decimal
	TotalUSD         decimal.Decimal
	TotalEUR         decimal.Decimal
	PaymentMethod    string
	Status           InvoiceStatus
	ProofRef         string
	AdminNote        string
	CreatedAt        time.Time
	ProofSubmittedAt *time.Time
	ApprovedAt       *time.Time
}
