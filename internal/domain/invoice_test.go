package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusUnpaid, InvoiceStatusPendingReview, true},
		{InvoiceStatusUnpaid, InvoiceStatusExpired, true},
		{InvoiceStatusUnpaid, InvoiceStatusPaid, false},
		{InvoiceStatusPendingReview, InvoiceStatusPaid, true},
		{InvoiceStatusPendingReview, InvoiceStatusRejected, true},
		{InvoiceStatusPendingReview, InvoiceStatusExpired, false},
		{InvoiceStatusRejected, InvoiceStatusPendingReview, true},
		{InvoiceStatusRejected, InvoiceStatusPaid, false},
		{InvoiceStatusPaid, InvoiceStatusPendingReview, false},
		{InvoiceStatusExpired, InvoiceStatusPendingReview, false},
		// Admin cancel from any non-terminal status
		{InvoiceStatusUnpaid, InvoiceStatusCancelled, true},
		{InvoiceStatusPendingReview, InvoiceStatusCancelled, true},
		{InvoiceStatusRejected, InvoiceStatusCancelled, true},
		{InvoiceStatusPaid, InvoiceStatusCancelled, false},
		{InvoiceStatusExpired, InvoiceStatusCancelled, false},
		{InvoiceStatusCancelled, InvoiceStatusCancelled, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestInvoiceStatus_Terminal(t *testing.T) {
	terminal := []InvoiceStatus{InvoiceStatusPaid, InvoiceStatusExpired, InvoiceStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []InvoiceStatus{InvoiceStatusUnpaid, InvoiceStatusPendingReview, InvoiceStatusRejected}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
