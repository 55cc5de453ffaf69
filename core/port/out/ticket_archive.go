package out

import (
	"context"

	"ticket_worker/core/domain"
)

// DecisionArchive persists decision records for audit and operator
// follow-up. Writes are best-effort; an archive failure never changes
// the decision already made.
type DecisionArchive interface {
	Record(ctx context.Context, rec *domain.DecisionRecord) error
}
