package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"ticket_worker/core/domain"
	"ticket_worker/core/port/out"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeFingerprintStore struct {
	mu       sync.Mutex
	seen     map[string]domain.FingerprintOutcome
	failNext error
}

func newFakeFingerprintStore() *fakeFingerprintStore {
	return &fakeFingerprintStore{seen: make(map[string]domain.FingerprintOutcome)}
}

func (f *fakeFingerprintStore) CheckAndInsert(ctx context.Context, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return false, err
	}
	if _, ok := f.seen[fingerprint]; ok {
		return false, nil
	}
	f.seen[fingerprint] = domain.OutcomeProcessed
	return true, nil
}

func (f *fakeFingerprintStore) UpdateOutcome(ctx context.Context, fingerprint string, outcome domain.FingerprintOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[fingerprint] = outcome
	return nil
}

func (f *fakeFingerprintStore) outcome(fingerprint string) (domain.FingerprintOutcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.seen[fingerprint]
	return o, ok
}

type fakeClassifier struct {
	mu     sync.Mutex
	result *domain.Classification
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, subject, body, sender string) (*domain.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTicketCreator struct {
	mu      sync.Mutex
	err     error
	created []*out.TicketRequest
}

func (f *fakeTicketCreator) CreateTicket(ctx context.Context, req *out.TicketRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, req)
	return fmt.Sprintf("TICKET-%d", len(f.created)), nil
}

func (f *fakeTicketCreator) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeArchive struct {
	mu      sync.Mutex
	records []*domain.DecisionRecord
}

func (f *fakeArchive) Record(ctx context.Context, rec *domain.DecisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func actionable(confidence float64) *domain.Classification {
	category := domain.CategoryMM
	priority := domain.PriorityHigh
	return &domain.Classification{
		IsActionable:      true,
		Category:          &category,
		SuggestedTitle:    "Purchase order stuck in approval",
		SuggestedPriority: &priority,
		Confidence:        confidence,
		Source:            "llm",
	}
}

func testMessage(fingerprint string) *domain.Message {
	return &domain.Message{
		Fingerprint:   fingerprint,
		Subject:       "PO 4500012345 stuck in SAP approval workflow",
		Body:          "The purchase order transaction ME21N fails with an error.",
		SenderAddress: "buyer@example.com",
		ReceivedAt:    time.Now().UTC(),
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestEngineDecisions(t *testing.T) {
	tests := []struct {
		name           string
		classification *domain.Classification
		classifierErr  error
		creatorErr     error
		wantDecision   domain.Decision
		wantTicket     bool
	}{
		{
			name:           "actionable above threshold creates ticket",
			classification: actionable(0.9),
			wantDecision:   domain.DecisionCreatedTicket,
			wantTicket:     true,
		},
		{
			name:           "confidence exactly at threshold creates ticket",
			classification: actionable(0.6),
			wantDecision:   domain.DecisionCreatedTicket,
			wantTicket:     true,
		},
		{
			name:           "confidence just below threshold is skipped",
			classification: actionable(0.599),
			wantDecision:   domain.DecisionSkippedLowConfidence,
		},
		{
			name: "not actionable is skipped regardless of confidence",
			classification: &domain.Classification{
				IsActionable: false,
				Confidence:   0.95,
				Source:       "llm",
			},
			wantDecision: domain.DecisionSkippedNotActionable,
		},
		{
			name:           "ticket store failure yields errored record",
			classification: actionable(0.9),
			creatorErr:     errors.New("connection refused"),
			wantDecision:   domain.DecisionErrored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeFingerprintStore()
			creator := &fakeTicketCreator{err: tt.creatorErr}
			classifier := &fakeClassifier{result: tt.classification, err: tt.classifierErr}

			engine := NewEngine(EngineDeps{
				FingerprintStore: store,
				Classifier:       classifier,
				TicketCreator:    creator,
			}, 0)

			rec := engine.Process(context.Background(), "run-1", testMessage("fp-1"))

			if rec.Decision != tt.wantDecision {
				t.Fatalf("decision = %s, want %s", rec.Decision, tt.wantDecision)
			}
			if tt.wantTicket && rec.TicketRef == "" {
				t.Error("expected ticket ref on created-ticket record")
			}
			if !tt.wantTicket && rec.TicketRef != "" {
				t.Errorf("unexpected ticket ref %q", rec.TicketRef)
			}
			if rec.DecidedAt.IsZero() {
				t.Error("DecidedAt not set")
			}
		})
	}
}

func TestEngineDuplicateSkipsClassification(t *testing.T) {
	store := newFakeFingerprintStore()
	classifier := &fakeClassifier{result: actionable(0.9)}
	creator := &fakeTicketCreator{}

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		Classifier:       classifier,
		TicketCreator:    creator,
	}, 0)

	first := engine.Process(context.Background(), "run-1", testMessage("fp-dup"))
	if first.Decision != domain.DecisionCreatedTicket {
		t.Fatalf("first pass decision = %s, want created-ticket", first.Decision)
	}

	second := engine.Process(context.Background(), "run-2", testMessage("fp-dup"))
	if second.Decision != domain.DecisionSkippedDuplicate {
		t.Fatalf("second pass decision = %s, want skipped-duplicate", second.Decision)
	}
	if second.Classification != nil {
		t.Error("duplicate record must not carry a classification")
	}
	if got := classifier.callCount(); got != 1 {
		t.Errorf("classifier called %d times, want 1 (duplicates must not be classified)", got)
	}
	if len(creator.created) != 1 {
		t.Errorf("tickets created = %d, want 1", len(creator.created))
	}
}

// A fingerprint claimed by a run that dies before the ticket is emitted
// stays claimed. The message is lost rather than double-ticketed: the
// replay must come back skipped-duplicate without another classification.
func TestEngineInterruptedRunIsNeverReTicketed(t *testing.T) {
	store := newFakeFingerprintStore()
	classifier := &fakeClassifier{result: actionable(0.9)}
	creator := &fakeTicketCreator{err: errors.New("connection reset")}

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		Classifier:       classifier,
		TicketCreator:    creator,
	}, 0)

	first := engine.Process(context.Background(), "run-1", testMessage("fp-cut"))
	if first.Decision != domain.DecisionErrored {
		t.Fatalf("first pass decision = %s, want errored", first.Decision)
	}
	if got, ok := store.outcome("fp-cut"); !ok || got != domain.OutcomeErrored {
		t.Fatalf("outcome after interrupted pass = %v (recorded=%v), want errored", got, ok)
	}

	// The ticket store recovers, but the claim from the first pass holds.
	creator.setErr(nil)
	second := engine.Process(context.Background(), "run-2", testMessage("fp-cut"))

	if second.Decision != domain.DecisionSkippedDuplicate {
		t.Fatalf("replay decision = %s, want skipped-duplicate", second.Decision)
	}
	if len(creator.created) != 0 {
		t.Errorf("tickets created = %d, want 0 (at-most-once)", len(creator.created))
	}
	if got := classifier.callCount(); got != 1 {
		t.Errorf("classifier called %d times, want 1 (replay must not re-classify)", got)
	}
}

func TestEngineFallbackOnClassifierFailure(t *testing.T) {
	for _, cause := range []error{
		domain.ErrClassifierUnavailable,
		domain.ErrClassifierTimeout,
		domain.ErrClassifierMalformed,
	} {
		t.Run(cause.Error(), func(t *testing.T) {
			store := newFakeFingerprintStore()
			creator := &fakeTicketCreator{}
			classifier := &fakeClassifier{err: cause}

			engine := NewEngine(EngineDeps{
				FingerprintStore: store,
				Classifier:       classifier,
				TicketCreator:    creator,
			}, 0)

			// Body matches SAP keywords, so the fallback marks it actionable.
			rec := engine.Process(context.Background(), "run-1", testMessage("fp-"+cause.Error()))

			if rec.Classification == nil {
				t.Fatal("expected a fallback classification")
			}
			if rec.Classification.Source != "keyword" {
				t.Errorf("classification source = %s, want keyword", rec.Classification.Source)
			}
			if rec.Classification.Confidence != 0.5 {
				t.Errorf("fallback confidence = %v, want 0.5", rec.Classification.Confidence)
			}
			// 0.5 sits below the 0.6 threshold: degraded runs never auto-create.
			if rec.Decision != domain.DecisionSkippedLowConfidence {
				t.Errorf("decision = %s, want skipped-low-confidence", rec.Decision)
			}
			if len(creator.created) != 0 {
				t.Errorf("tickets created = %d, want 0", len(creator.created))
			}
		})
	}
}

func TestEngineFingerprintStoreFailure(t *testing.T) {
	store := newFakeFingerprintStore()
	store.failNext = errors.New("db down")
	classifier := &fakeClassifier{result: actionable(0.9)}
	creator := &fakeTicketCreator{}

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		Classifier:       classifier,
		TicketCreator:    creator,
	}, 0)

	rec := engine.Process(context.Background(), "run-1", testMessage("fp-err"))

	if rec.Decision != domain.DecisionErrored {
		t.Fatalf("decision = %s, want errored", rec.Decision)
	}
	if rec.Error == "" {
		t.Error("errored record must carry the error text")
	}
	if classifier.callCount() != 0 {
		t.Error("classifier must not run when the fingerprint claim fails")
	}
	// The insert never happened, so no outcome row may be patched.
	if _, ok := store.outcome("fp-err"); ok {
		t.Error("outcome patched for a fingerprint that was never claimed")
	}
}

func TestEngineOutcomePatching(t *testing.T) {
	tests := []struct {
		name           string
		classification *domain.Classification
		wantOutcome    domain.FingerprintOutcome
	}{
		{"created maps to processed", actionable(0.9), domain.OutcomeProcessed},
		{"low confidence maps to skipped", actionable(0.3), domain.OutcomeSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeFingerprintStore()
			engine := NewEngine(EngineDeps{
				FingerprintStore: store,
				Classifier:       &fakeClassifier{result: tt.classification},
				TicketCreator:    &fakeTicketCreator{},
			}, 0)

			engine.Process(context.Background(), "run-1", testMessage("fp-out"))

			got, ok := store.outcome("fp-out")
			if !ok {
				t.Fatal("fingerprint not recorded")
			}
			if got != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", got, tt.wantOutcome)
			}
		})
	}
}

func TestEngineArchivesEveryDecision(t *testing.T) {
	store := newFakeFingerprintStore()
	archive := &fakeArchive{}

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		Classifier:       &fakeClassifier{result: actionable(0.9)},
		TicketCreator:    &fakeTicketCreator{},
		Archive:          archive,
	}, 0)

	engine.Process(context.Background(), "run-1", testMessage("fp-a"))
	engine.Process(context.Background(), "run-1", testMessage("fp-a")) // duplicate
	engine.Process(context.Background(), "run-1", testMessage("fp-b"))

	if len(archive.records) != 3 {
		t.Fatalf("archived %d records, want 3 (duplicates are recorded too)", len(archive.records))
	}
}

func TestEngineTitleAndPriorityFallbacks(t *testing.T) {
	store := newFakeFingerprintStore()
	creator := &fakeTicketCreator{}

	cls := actionable(0.9)
	cls.SuggestedTitle = ""
	cls.SuggestedPriority = nil
	cls.Category = nil

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		Classifier:       &fakeClassifier{result: cls},
		TicketCreator:    creator,
	}, 0)

	msg := testMessage("fp-title")
	msg.Subject = strings.Repeat("x", 250)
	engine.Process(context.Background(), "run-1", msg)

	if len(creator.created) != 1 {
		t.Fatal("expected one ticket")
	}
	req := creator.created[0]
	if req.Title != strings.Repeat("x", 200) {
		t.Errorf("title fallback not truncated to 200 chars, got len %d", len(req.Title))
	}
	if req.Priority != domain.PriorityMedium {
		t.Errorf("priority = %s, want Medium fallback", req.Priority)
	}
	if req.Category != domain.CategoryOther {
		t.Errorf("category = %s, want OTHER fallback", req.Category)
	}
}

func TestEngineTruncationKeepsRunesIntact(t *testing.T) {
	store := newFakeFingerprintStore()
	creator := &fakeTicketCreator{}

	cls := actionable(0.9)
	// 3-byte runes whose byte count does not divide the caps evenly, so a
	// naive byte slice would cut mid-rune.
	cls.SuggestedTitle = strings.Repeat("世", 80)

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		Classifier:       &fakeClassifier{result: cls},
		TicketCreator:    creator,
	}, 0)

	msg := testMessage("fp-utf8")
	msg.Body = strings.Repeat("界", 700)
	engine.Process(context.Background(), "run-1", msg)

	if len(creator.created) != 1 {
		t.Fatal("expected one ticket")
	}
	req := creator.created[0]

	if !utf8.ValidString(req.Title) {
		t.Error("title contains invalid UTF-8 after truncation")
	}
	if len(req.Title) > maxTitleLen {
		t.Errorf("title length = %d bytes, want <= %d", len(req.Title), maxTitleLen)
	}
	if req.Title != strings.Repeat("世", 66) {
		t.Errorf("title cut at byte %d, want a rune boundary", len(req.Title))
	}
	if !utf8.ValidString(req.Description) {
		t.Error("description contains invalid UTF-8 after body truncation")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short string untouched", "hello", 10, "hello"},
		{"ascii cut at max", "hello", 3, "hel"},
		{"multi-byte rune not split", "aä", 2, "a"},
		{"cut lands on rune boundary", "äää", 4, "ää"},
		{"empty string", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
			}
		})
	}
}

func TestEngineWithoutPrimaryClassifier(t *testing.T) {
	store := newFakeFingerprintStore()
	creator := &fakeTicketCreator{}

	engine := NewEngine(EngineDeps{
		FingerprintStore: store,
		TicketCreator:    creator,
	}, 0)

	rec := engine.Process(context.Background(), "run-1", testMessage("fp-nollm"))

	if rec.Classification == nil || rec.Classification.Source != "keyword" {
		t.Fatal("expected keyword classification when no primary classifier is configured")
	}
}
