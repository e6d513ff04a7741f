package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tokenpad/presale-core/internal/domain"
)

// Store persists invoices, notification jobs and the audit ledger in
// Postgres. Every mutation goes through a conditional update; blind
// overwrites are not exposed.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the row helpers
// can run standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InvoiceTransition describes one compare-and-swap status change. Expect is
// the status the caller observed; if the stored status no longer matches,
// the transition fails with ErrConcurrentModification and nothing is
// written. Notify, when set, enqueues exactly one notification job in the
// same transaction.
type InvoiceTransition struct {
	InvoiceNo string
	Expect    domain.InvoiceStatus
	To        domain.InvoiceStatus
	ProofRef  string
	AdminNote string
	Action    string
	Actor     string
	Notify    *JobDraft
}

// JobDraft is the enqueue payload for a notification job.
type JobDraft struct {
	Recipient  string
	TemplateID string
	Vars       map[string]string
	Lease      time.Duration
}
