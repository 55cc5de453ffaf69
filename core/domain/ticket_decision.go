package domain

import (
	"errors"
	"time"
)

// Run-level errors. Only these two propagate out of a pipeline run;
// every other failure is absorbed into decision records.
var (
	ErrSourceUnavailable = errors.New("message source unavailable")
	ErrAlreadyRunning    = errors.New("pipeline run already in progress")
)

// Classifier failure modes. All three are recovered locally by the
// keyword fallback and never surface past the decision engine.
var (
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrClassifierTimeout     = errors.New("classifier timeout")
	ErrClassifierMalformed   = errors.New("classifier returned malformed response")
)

// ErrTicketCreationFailed marks a message-level ticket store failure.
var ErrTicketCreationFailed = errors.New("ticket creation failed")

// Classification is the classifier's judgment for one message.
// Produced fresh per message, immutable once produced.
type Classification struct {
	IsActionable      bool            `json:"is_actionable"`
	Category          *TicketCategory `json:"category,omitempty"`
	SuggestedTitle    string          `json:"suggested_title,omitempty"`
	SuggestedPriority *TicketPriority `json:"suggested_priority,omitempty"`
	KeyPoints         []string        `json:"key_points,omitempty"`
	Confidence        float64         `json:"confidence"`
	RawResponse       map[string]any  `json:"raw_response,omitempty"`
	Source            string          `json:"source"` // "llm" or "keyword"
}

// Decision is the fate assigned to exactly one message.
type Decision string

const (
	DecisionCreatedTicket        Decision = "created-ticket"
	DecisionSkippedNotActionable Decision = "skipped-not-actionable"
	DecisionSkippedLowConfidence Decision = "skipped-low-confidence"
	DecisionSkippedDuplicate     Decision = "skipped-duplicate"
	DecisionErrored              Decision = "errored"
)

// IsSkip reports whether the decision is one of the skip outcomes.
func (d Decision) IsSkip() bool {
	switch d {
	case DecisionSkippedNotActionable, DecisionSkippedLowConfidence, DecisionSkippedDuplicate:
		return true
	}
	return false
}

// FingerprintOutcome is the terminal state recorded against a
// fingerprint after processing completes.
type FingerprintOutcome string

const (
	OutcomeProcessed FingerprintOutcome = "processed"
	OutcomeSkipped   FingerprintOutcome = "skipped"
	OutcomeErrored   FingerprintOutcome = "errored"
)

// OutcomeForDecision maps a decision to the fingerprint outcome to patch.
func OutcomeForDecision(d Decision) FingerprintOutcome {
	switch d {
	case DecisionCreatedTicket:
		return OutcomeProcessed
	case DecisionErrored:
		return OutcomeErrored
	default:
		return OutcomeSkipped
	}
}

// DecisionRecord is the pipeline's immutable output for one message.
// Exactly one per fingerprint per run; a fingerprint seen again in a
// later run always yields skipped-duplicate.
type DecisionRecord struct {
	RunID          string          `json:"run_id"`
	Fingerprint    string          `json:"fingerprint"`
	Decision       Decision        `json:"decision"`
	Classification *Classification `json:"classification,omitempty"`
	TicketRef      string          `json:"ticket_ref,omitempty"`
	Error          string          `json:"error,omitempty"`
	DecidedAt      time.Time       `json:"decided_at"`
}

// RunStats aggregates counters for one coordinator invocation.
// Created at run start, mutated only by the owning run, finalized and
// returned at run end.
type RunStats struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched    int64 `json:"fetched"`
	Analyzed   int64 `json:"analyzed"`
	Actionable int64 `json:"actionable"`
	Created    int64 `json:"created"`
	Skipped    int64 `json:"skipped"`
	Errored    int64 `json:"errored"`
}
