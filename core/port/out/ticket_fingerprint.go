package out

import (
	"context"

	"ticket_worker/core/domain"
)

// FingerprintStore is the persistent set of previously seen message
// fingerprints. CheckAndInsert must be a single atomic operation
// (unique-constraint insert or SETNX equivalent) — never a separate
// exists/insert pair, because coordinators may race across processes.
type FingerprintStore interface {
	// CheckAndInsert records the fingerprint as seen. Returns
	// inserted=false when the fingerprint already exists, meaning the
	// message is a duplicate and must not be classified again.
	CheckAndInsert(ctx context.Context, fingerprint string) (inserted bool, err error)

	// UpdateOutcome patches the record after processing completes.
	// Best-effort: failure is logged, never retried — the dedup
	// guarantee depends only on the insert.
	UpdateOutcome(ctx context.Context, fingerprint string, outcome domain.FingerprintOutcome) error
}
