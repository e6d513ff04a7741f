package domain

import "errors"

var (
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrJobNotFound            = errors.New("notification job not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrAlreadyProcessed       = errors.New("already processed")
	ErrNoJobAvailable         = errors.New("no job available")
	ErrJobLocked              = errors.New("job locked by another worker")
	ErrDuplicateInvoice       = errors.New("invoice number already exists")
)
