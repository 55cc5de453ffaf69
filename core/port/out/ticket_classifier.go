package out

import (
	"context"

	"ticket_worker/core/domain"
)

// Classifier judges whether one message is actionable and how it should
// be filed. Implementations may fail with domain.ErrClassifierUnavailable,
// domain.ErrClassifierTimeout or domain.ErrClassifierMalformed (wrapped);
// the decision engine recovers from all three via the keyword fallback.
type Classifier interface {
	Classify(ctx context.Context, subject, body, sender string) (*domain.Classification, error)
}
