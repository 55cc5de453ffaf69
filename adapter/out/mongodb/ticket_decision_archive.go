// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"ticket_worker/core/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Decision Archive Adapter
// =============================================================================

const collectionDecisions = "pipeline_decisions"

// DecisionArchiveAdapter implements out.DecisionArchive using MongoDB.
// Records age out through a TTL index so the archive stays bounded.
type DecisionArchiveAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
	retention  time.Duration
}

// NewDecisionArchiveAdapter creates a new MongoDB decision archive.
// Retention <= 0 falls back to 90 days.
func NewDecisionArchiveAdapter(db *mongo.Database, retention time.Duration) *DecisionArchiveAdapter {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &DecisionArchiveAdapter{
		db:         db,
		collection: db.Collection(collectionDecisions),
		retention:  retention,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *DecisionArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "run_id", Value: 1},
				{Key: "fingerprint", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "fingerprint", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "decided_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type decisionDocument struct {
	RunID          string                `bson:"run_id"`
	Fingerprint    string                `bson:"fingerprint"`
	Decision       string                `bson:"decision"`
	Classification *classificationSubdoc `bson:"classification,omitempty"`
	TicketRef      string                `bson:"ticket_ref,omitempty"`
	Error          string                `bson:"error,omitempty"`
	DecidedAt      time.Time             `bson:"decided_at"`
	ExpiresAt      time.Time             `bson:"expires_at"`
}

type classificationSubdoc struct {
	IsActionable      bool           `bson:"is_actionable"`
	Category          string         `bson:"category,omitempty"`
	SuggestedTitle    string         `bson:"suggested_title,omitempty"`
	SuggestedPriority string         `bson:"suggested_priority,omitempty"`
	KeyPoints         []string       `bson:"key_points,omitempty"`
	Confidence        float64        `bson:"confidence"`
	RawResponse       map[string]any `bson:"raw_response,omitempty"`
	Source            string         `bson:"source"`
}

// Record implements out.DecisionArchive.
func (a *DecisionArchiveAdapter) Record(ctx context.Context, rec *domain.DecisionRecord) error {
	doc := a.toDocument(rec)

	_, err := a.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to archive decision record: %w", err)
	}
	return nil
}

// RecentByFingerprint returns archived decisions for one fingerprint,
// newest first.
func (a *DecisionArchiveAdapter) RecentByFingerprint(ctx context.Context, fingerprint string, limit int64) ([]*domain.DecisionRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "decided_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := a.collection.Find(ctx, bson.M{"fingerprint": fingerprint}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision archive: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []decisionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode decision records: %w", err)
	}

	records := make([]*domain.DecisionRecord, len(docs))
	for i := range docs {
		records[i] = docs[i].toDomain()
	}
	return records, nil
}

func (a *DecisionArchiveAdapter) toDocument(rec *domain.DecisionRecord) *decisionDocument {
	doc := &decisionDocument{
		RunID:       rec.RunID,
		Fingerprint: rec.Fingerprint,
		Decision:    string(rec.Decision),
		TicketRef:   rec.TicketRef,
		Error:       rec.Error,
		DecidedAt:   rec.DecidedAt,
		ExpiresAt:   rec.DecidedAt.Add(a.retention),
	}

	if cls := rec.Classification; cls != nil {
		sub := &classificationSubdoc{
			IsActionable:   cls.IsActionable,
			SuggestedTitle: cls.SuggestedTitle,
			KeyPoints:      cls.KeyPoints,
			Confidence:     cls.Confidence,
			RawResponse:    cls.RawResponse,
			Source:         cls.Source,
		}
		if cls.Category != nil {
			sub.Category = string(*cls.Category)
		}
		if cls.SuggestedPriority != nil {
			sub.SuggestedPriority = string(*cls.SuggestedPriority)
		}
		doc.Classification = sub
	}

	return doc
}

func (d *decisionDocument) toDomain() *domain.DecisionRecord {
	rec := &domain.DecisionRecord{
		RunID:       d.RunID,
		Fingerprint: d.Fingerprint,
		Decision:    domain.Decision(d.Decision),
		TicketRef:   d.TicketRef,
		Error:       d.Error,
		DecidedAt:   d.DecidedAt,
	}

	if sub := d.Classification; sub != nil {
		cls := &domain.Classification{
			IsActionable:   sub.IsActionable,
			SuggestedTitle: sub.SuggestedTitle,
			KeyPoints:      sub.KeyPoints,
			Confidence:     sub.Confidence,
			RawResponse:    sub.RawResponse,
			Source:         sub.Source,
		}
		if sub.Category != "" {
			category := domain.TicketCategory(sub.Category)
			cls.Category = &category
		}
		if sub.SuggestedPriority != "" {
			priority := domain.TicketPriority(sub.SuggestedPriority)
			cls.SuggestedPriority = &priority
		}
		rec.Classification = cls
	}

	return rec
}
