package out

import (
	"context"
	"time"

	"ticket_worker/core/domain"
)

// MessageSource pulls a bounded batch of messages from an external
// mailbox-like source. Implementations return messages ordered by
// receivedAt descending so the most recent items win under maxCount.
// A remote failure is reported as domain.ErrSourceUnavailable (wrapped);
// the coordinator treats it as a whole-run failure.
type MessageSource interface {
	Pull(ctx context.Context, windowStart, windowEnd time.Time, maxCount int) ([]*domain.Message, error)

	// Name identifies the source for logging ("graph", "gmail", ...).
	Name() string
}
