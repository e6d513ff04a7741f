package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tokenpad/presale-core/internal/domain"
)

// insertAudit appends one ledger entry using the caller's transaction so the
// mutation and its record either both persist or neither does. The ledger
// has no update or delete path.
func insertAudit(ctx context.Context, q querier, action, actor, targetID string, before, after any) error {
	beforeJSON, err := marshalSnapshot(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalSnapshot(after)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO audit_log (action, actor, target_id, before_state, after_state)
		VALUES ($1, $2, $3, $4, $5)`,
		action, actor, targetID, beforeJSON, afterJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit snapshot: %w", err)
	}
	return b, nil
}

// ListAudit returns the most recent entries for the admin console.
func (s *Store) ListAudit(ctx context.Context, targetID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, actor, target_id, before_state, after_state, created_at
		FROM audit_log
		WHERE $1 = '' OR target_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		targetID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.TargetID, &e.Before, &e.After, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
