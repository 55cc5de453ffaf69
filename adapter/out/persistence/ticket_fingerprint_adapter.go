// Package persistence implements PostgreSQL-backed output adapters.
package persistence

import (
	"context"
	"fmt"

	"ticket_worker/core/domain"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// FingerprintAdapter - processed-message registry
// =============================================================================

// FingerprintAdapter implements out.FingerprintStore on PostgreSQL.
// CheckAndInsert relies on INSERT ... ON CONFLICT DO NOTHING against the
// primary key, so the check and the claim are a single atomic statement
// and concurrent workers can never both claim the same fingerprint.
type FingerprintAdapter struct {
	db *sqlx.DB
}

func NewFingerprintAdapter(db *sqlx.DB) *FingerprintAdapter {
	return &FingerprintAdapter{db: db}
}

// CheckAndInsert claims the fingerprint. Returns true when this call
// inserted the row, false when the fingerprint was already present.
func (a *FingerprintAdapter) CheckAndInsert(ctx context.Context, fingerprint string) (bool, error) {
	query := `
		INSERT INTO processed_fingerprints (fingerprint, outcome, first_seen_at)
		VALUES ($1, 'processed', NOW())
		ON CONFLICT (fingerprint) DO NOTHING`

	result, err := a.db.ExecContext(ctx, query, fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to insert fingerprint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows == 1, nil
}

// UpdateOutcome patches the outcome of an already claimed fingerprint.
func (a *FingerprintAdapter) UpdateOutcome(ctx context.Context, fingerprint string, outcome domain.FingerprintOutcome) error {
	query := `
		UPDATE processed_fingerprints
		SET outcome = $1, updated_at = NOW()
		WHERE fingerprint = $2`

	_, err := a.db.ExecContext(ctx, query, string(outcome), fingerprint)
	if err != nil {
		return fmt.Errorf("failed to update fingerprint outcome: %w", err)
	}
	return nil
}
