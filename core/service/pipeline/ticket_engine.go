package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ticket_worker/core/domain"
	"ticket_worker/core/port/out"
	"ticket_worker/pkg/logger"
)

const (
	// DefaultConfidenceThreshold gates ticket creation: a classification
	// at or above it is eligible, below it is skipped-low-confidence.
	DefaultConfidenceThreshold = 0.6

	maxTitleLen           = 200
	maxDescriptionBodyLen = 2000
)

// Engine decides the fate of exactly one message and produces exactly
// one decision record. It never returns an error: every failure mode is
// folded into the record so one bad message cannot stop a batch.
type Engine struct {
	fingerprints out.FingerprintStore
	classifier   out.Classifier // primary; nil when no LLM is configured
	fallback     out.Classifier // deterministic keyword rule, never fails
	tickets      out.TicketCreator
	archive      out.DecisionArchive // optional
	threshold    float64
}

// EngineDeps holds dependencies for creating an Engine.
type EngineDeps struct {
	FingerprintStore out.FingerprintStore
	Classifier       out.Classifier
	Fallback         out.Classifier
	TicketCreator    out.TicketCreator
	Archive          out.DecisionArchive
}

// NewEngine creates a decision engine. Threshold <= 0 selects the default.
func NewEngine(deps EngineDeps, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	fallback := deps.Fallback
	if fallback == nil {
		fallback = NewKeywordClassifier()
	}
	return &Engine{
		fingerprints: deps.FingerprintStore,
		classifier:   deps.Classifier,
		fallback:     fallback,
		tickets:      deps.TicketCreator,
		archive:      deps.Archive,
		threshold:    threshold,
	}
}

// Process runs one message through dedup, classification and the
// decision threshold. The returned record is the only output; errors
// are absorbed into it.
func (e *Engine) Process(ctx context.Context, runID string, msg *domain.Message) (rec *domain.DecisionRecord) {
	rec = &domain.DecisionRecord{
		RunID:       runID,
		Fingerprint: msg.Fingerprint,
	}

	inserted := false
	defer func() {
		if r := recover(); r != nil {
			rec.Decision = domain.DecisionErrored
			rec.Error = fmt.Sprintf("panic: %v", r)
			logger.WithFingerprint(msg.Fingerprint).Error("[Engine.Process] recovered from panic: %v", r)
		}
		rec.DecidedAt = time.Now().UTC()
		e.finalize(ctx, rec, inserted)
	}()

	// Dedup first. The atomic insert is the only synchronization point;
	// a duplicate must not incur classification cost.
	var err error
	inserted, err = e.fingerprints.CheckAndInsert(ctx, msg.Fingerprint)
	if err != nil {
		rec.Decision = domain.DecisionErrored
		rec.Error = fmt.Sprintf("fingerprint store: %v", err)
		logger.WithFingerprint(msg.Fingerprint).Error("[Engine.Process] checkAndInsert failed: %v", err)
		return rec
	}
	if !inserted {
		rec.Decision = domain.DecisionSkippedDuplicate
		logger.WithFingerprint(msg.Fingerprint).Debug("[Engine.Process] duplicate fingerprint, skipping")
		return rec
	}

	cls := e.classify(ctx, msg)
	rec.Classification = cls

	switch {
	case !cls.IsActionable:
		rec.Decision = domain.DecisionSkippedNotActionable
	case cls.Confidence < e.threshold:
		rec.Decision = domain.DecisionSkippedLowConfidence
	default:
		ref, err := e.createTicket(ctx, msg, cls)
		if err != nil {
			rec.Decision = domain.DecisionErrored
			rec.Error = err.Error()
			logger.WithFingerprint(msg.Fingerprint).Error("[Engine.Process] ticket creation failed: %v", err)
		} else {
			rec.Decision = domain.DecisionCreatedTicket
			rec.TicketRef = ref
			logger.WithFingerprint(msg.Fingerprint).Info("[Engine.Process] ticket created: %s", ref)
		}
	}

	return rec
}

// classify invokes the primary classifier and falls back to the keyword
// rule on any failure. It always returns a classification.
func (e *Engine) classify(ctx context.Context, msg *domain.Message) *domain.Classification {
	if e.classifier != nil {
		cls, err := e.classifier.Classify(ctx, msg.Subject, msg.Body, msg.SenderAddress)
		if err == nil && cls != nil {
			return cls
		}
		logger.WithFingerprint(msg.Fingerprint).Warn("[Engine.classify] primary classifier failed, using keyword fallback: %v", err)
	}

	cls, _ := e.fallback.Classify(ctx, msg.Subject, msg.Body, msg.SenderAddress)
	return cls
}

func (e *Engine) createTicket(ctx context.Context, msg *domain.Message, cls *domain.Classification) (string, error) {
	title := strings.TrimSpace(cls.SuggestedTitle)
	if title == "" {
		title = strings.TrimSpace(msg.Subject)
	}
	title = truncate(title, maxTitleLen)

	priority := domain.PriorityMedium
	if cls.SuggestedPriority != nil {
		priority = *cls.SuggestedPriority
	}

	category := domain.CategoryOther
	if cls.Category != nil {
		category = *cls.Category
	}

	req := &out.TicketRequest{
		Title:             title,
		Description:       buildDescription(msg, cls),
		Category:          category,
		Priority:          priority,
		SourceFingerprint: msg.Fingerprint,
		SenderAddress:     msg.SenderAddress,
		SourceSubject:     msg.Subject,
		Confidence:        cls.Confidence,
		KeyPoints:         cls.KeyPoints,
	}

	ref, err := e.tickets.CreateTicket(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTicketCreationFailed, err)
	}
	return ref, nil
}

// finalize patches the fingerprint outcome and archives the record.
// Both are best-effort: the dedup guarantee depends only on the insert.
func (e *Engine) finalize(ctx context.Context, rec *domain.DecisionRecord, inserted bool) {
	if inserted {
		outcome := domain.OutcomeForDecision(rec.Decision)
		if err := e.fingerprints.UpdateOutcome(ctx, rec.Fingerprint, outcome); err != nil {
			logger.WithFingerprint(rec.Fingerprint).Warn("[Engine.finalize] outcome update failed: %v", err)
		}
	}

	if e.archive != nil {
		if err := e.archive.Record(ctx, rec); err != nil {
			logger.WithFingerprint(rec.Fingerprint).Warn("[Engine.finalize] archive write failed: %v", err)
		}
	}
}

// buildDescription renders the ticket body from the message and its
// classification, with the original content truncated.
func buildDescription(msg *domain.Message, cls *domain.Classification) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Email from:** %s\n\n", msg.SenderAddress)
	fmt.Fprintf(&b, "**Original Subject:** %s\n\n", msg.Subject)

	fmt.Fprintf(&b, "**Content:**\n%s\n\n", truncate(msg.Body, maxDescriptionBodyLen))

	if len(cls.KeyPoints) > 0 {
		b.WriteString("**Key Points:**\n")
		for _, point := range cls.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", point)
		}
	}

	fmt.Fprintf(&b, "\n---\n*Auto-generated ticket (Confidence: %.0f%%)*", cls.Confidence*100)
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a multi-byte
// rune at the boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
