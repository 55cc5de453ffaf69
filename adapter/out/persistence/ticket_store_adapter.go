package persistence

import (
	"context"
	"fmt"

	"ticket_worker/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// =============================================================================
// TicketAdapter - ticket record store
// =============================================================================

// TicketAdapter implements out.TicketCreator on PostgreSQL.
type TicketAdapter struct {
	db *sqlx.DB
}

func NewTicketAdapter(db *sqlx.DB) *TicketAdapter {
	return &TicketAdapter{db: db}
}

// CreateTicket inserts one ticket row and returns its reference.
func (a *TicketAdapter) CreateTicket(ctx context.Context, req *out.TicketRequest) (string, error) {
	ref := uuid.NewString()

	query := `
		INSERT INTO tickets (
			ticket_ref, title, description, category, priority, status,
			source_fingerprint, sender_address, source_subject,
			confidence, key_points, created_at
		) VALUES ($1, $2, $3, $4, $5, 'Open', $6, $7, $8, $9, $10, NOW())`

	_, err := a.db.ExecContext(ctx, query,
		ref,
		req.Title,
		req.Description,
		string(req.Category),
		string(req.Priority),
		req.SourceFingerprint,
		req.SenderAddress,
		req.SourceSubject,
		req.Confidence,
		pq.Array(req.KeyPoints),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert ticket: %w", err)
	}

	return ref, nil
}
