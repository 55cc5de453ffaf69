package persistence

import (
	"context"
	"fmt"
	"time"

	"ticket_worker/core/domain"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// RedisFingerprintAdapter - registry on Redis SETNX
// =============================================================================

const fingerprintKeyPrefix = "fp:"

// RedisFingerprintAdapter implements out.FingerprintStore on Redis.
// SETNX gives the same atomic claim semantics as the SQL ON CONFLICT
// path. A TTL turns the registry into a sliding dedup window; zero TTL
// keeps fingerprints forever.
type RedisFingerprintAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFingerprintAdapter(client *redis.Client, ttl time.Duration) *RedisFingerprintAdapter {
	return &RedisFingerprintAdapter{client: client, ttl: ttl}
}

// CheckAndInsert claims the fingerprint via SETNX.
func (a *RedisFingerprintAdapter) CheckAndInsert(ctx context.Context, fingerprint string) (bool, error) {
	inserted, err := a.client.SetNX(ctx, fingerprintKeyPrefix+fingerprint, string(domain.OutcomeProcessed), a.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim fingerprint: %w", err)
	}
	return inserted, nil
}

// UpdateOutcome rewrites the value while keeping the remaining TTL.
func (a *RedisFingerprintAdapter) UpdateOutcome(ctx context.Context, fingerprint string, outcome domain.FingerprintOutcome) error {
	err := a.client.Set(ctx, fingerprintKeyPrefix+fingerprint, string(outcome), redis.KeepTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to update fingerprint outcome: %w", err)
	}
	return nil
}
