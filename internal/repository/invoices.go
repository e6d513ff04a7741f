package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tokenpad/presale-core/internal/domain"
)

const invoiceCols = `id, invoice_no, buyer_id, buyer_email, stage, token_amount,
	total_usd, total_eur, payment_method, status, proof_ref, admin_note,
	created_at, proof_submitted_at, approved_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNo, &inv.BuyerID, &inv.BuyerEmail, &inv.Stage,
		&inv.TokenAmount, &inv.TotalUSD, &inv.TotalEUR, &inv.PaymentMethod,
		&inv.Status, &inv.ProofRef, &inv.AdminNote,
		&inv.CreatedAt, &inv.ProofSubmittedAt, &inv.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice inserts a new UNPAID invoice and its creation audit entry.
func (s *Store) CreateInvoice(ctx context.Context, inv *domain.Invoice, actor string) (*domain.Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO invoices (invoice_no, buyer_id, buyer_email, stage,
			token_amount, total_usd, total_eur, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+invoiceCols,
		inv.InvoiceNo, inv.BuyerID, inv.BuyerEmail, inv.Stage,
		inv.TokenAmount, inv.TotalUSD, inv.TotalEUR, inv.PaymentMethod,
		domain.InvoiceStatusUnpaid,
	)
	created, err := scanInvoice(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateInvoice
		}
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	if err := insertAudit(ctx, tx, domain.AuditInvoiceCreated, actor, created.InvoiceNo, nil, created); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceNo string) (*domain.Invoice, error) {
	return getInvoice(ctx, s.pool, invoiceNo)
}

func getInvoice(ctx context.Context, q querier, invoiceNo string) (*domain.Invoice, error) {
	row := q.QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE invoice_no = $1`, invoiceNo)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// ApplyInvoiceTransition performs the compare-and-swap status change and, in
// the same transaction, enqueues the notification job and appends the audit
// entry. Either all three persist or none does.
func (s *Store) ApplyInvoiceTransition(ctx context.Context, t InvoiceTransition) (*domain.Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := getInvoice(ctx, tx, t.InvoiceNo)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE invoices SET
			status = $3,
			proof_ref = CASE WHEN $4 <> '' THEN $4 ELSE proof_ref END,
			admin_note = CASE WHEN $5 <> '' THEN $5 ELSE admin_note END,
			proof_submitted_at = CASE WHEN $3 = 'pending_review' THEN now() ELSE proof_submitted_at END,
			approved_at = CASE WHEN $3 = 'paid' THEN now() ELSE approved_at END
		WHERE invoice_no = $1 AND status = $2
		RETURNING `+invoiceCols,
		t.InvoiceNo, t.Expect, t.To, t.ProofRef, t.AdminNote,
	)
	after, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row exists but the expected prior status no longer holds.
			return nil, domain.ErrConcurrentModification
		}
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	if t.Notify != nil {
		if _, err := insertJob(ctx, tx, *t.Notify); err != nil {
			return nil, err
		}
	}

	if err := insertAudit(ctx, tx, t.Action, t.Actor, t.InvoiceNo, before, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// ListStaleUnpaid returns invoice numbers still UNPAID past the cutoff,
// candidates for the expiry sweep.
func (s *Store) ListStaleUnpaid(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT invoice_no FROM invoices
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at`,
		domain.InvoiceStatusUnpaid, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale invoices: %w", err)
	}
	defer rows.Close()

	var nos []string
	for rows.Next() {
		var no string
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("scan invoice no: %w", err)
		}
		nos = append(nos, no)
	}
	return nos, rows.Err()
}

func (s *Store) InvoiceCountsByStatus(ctx context.Context) (map[domain.InvoiceStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM invoices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.InvoiceStatus]int)
	for rows.Next() {
		var status domain.InvoiceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
