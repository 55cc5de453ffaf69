package pipeline

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"ticket_worker/core/domain"
)

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier()

	tests := []struct {
		name           string
		subject        string
		body           string
		wantActionable bool
		wantConfidence float64
		wantPriority   domain.TicketPriority
	}{
		{
			name:           "SAP transaction error is actionable",
			subject:        "SAP transaction ME21N fails",
			body:           "Purchase order creation returns a dump.",
			wantActionable: true,
			wantConfidence: 0.5,
			wantPriority:   domain.PriorityMedium,
		},
		{
			name:           "urgent production issue detects critical priority",
			subject:        "URGENT: production order posting blocked",
			body:           "The production line has stopped, please fix immediately.",
			wantActionable: true,
			wantConfidence: 0.5,
			wantPriority:   domain.PriorityCritical,
		},
		{
			name:           "payroll question detects HCM vocabulary",
			subject:        "Payroll run question",
			body:           "Employee time management records look wrong this month.",
			wantActionable: true,
			wantConfidence: 0.5,
			wantPriority:   domain.PriorityMedium,
		},
		{
			name:           "cosmetic request detects low priority",
			subject:        "Minor cosmetic issue in invoice layout",
			body:           "No rush, the billing document logo is misaligned.",
			wantActionable: true,
			wantConfidence: 0.5,
			wantPriority:   domain.PriorityLow,
		},
		{
			name:           "lunch invitation is not actionable",
			subject:        "Lunch on Friday?",
			body:           "Want to grab food at noon?",
			wantActionable: false,
			wantConfidence: 0.0,
		},
		{
			name:           "empty message is not actionable",
			subject:        "",
			body:           "",
			wantActionable: false,
			wantConfidence: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, err := classifier.Classify(context.Background(), tt.subject, tt.body, "someone@example.com")
			if err != nil {
				t.Fatalf("keyword classifier must never error, got %v", err)
			}

			if cls.IsActionable != tt.wantActionable {
				t.Errorf("IsActionable = %v, want %v", cls.IsActionable, tt.wantActionable)
			}
			if cls.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", cls.Confidence, tt.wantConfidence)
			}
			if cls.Source != "keyword" {
				t.Errorf("Source = %q, want keyword", cls.Source)
			}
			if cls.Category != nil {
				t.Errorf("Category = %v, keyword rule must not assign a module", *cls.Category)
			}

			if tt.wantActionable {
				if cls.SuggestedPriority == nil {
					t.Fatal("actionable result missing priority")
				}
				if *cls.SuggestedPriority != tt.wantPriority {
					t.Errorf("priority = %s, want %s", *cls.SuggestedPriority, tt.wantPriority)
				}
			}
		})
	}
}

func TestKeywordClassifierDeterministic(t *testing.T) {
	classifier := NewKeywordClassifier()
	subject := "SAP basis transport request stuck"
	body := "Background job RDDEXECL hangs during import."

	first, _ := classifier.Classify(context.Background(), subject, body, "a@b.c")
	for i := 0; i < 10; i++ {
		again, _ := classifier.Classify(context.Background(), subject, body, "a@b.c")
		if again.IsActionable != first.IsActionable || again.Confidence != first.Confidence {
			t.Fatal("keyword classification is not deterministic")
		}
	}
}

func TestKeywordClassifierTitle(t *testing.T) {
	classifier := NewKeywordClassifier()

	t.Run("long subject is truncated", func(t *testing.T) {
		subject := "SAP " + strings.Repeat("y", 200)
		cls, _ := classifier.Classify(context.Background(), subject, "", "a@b.c")
		if len(cls.SuggestedTitle) != 100 {
			t.Errorf("title length = %d, want 100", len(cls.SuggestedTitle))
		}
	})

	t.Run("multi-byte subject is cut at a rune boundary", func(t *testing.T) {
		subject := "SAP " + strings.Repeat("ü", 120)
		cls, _ := classifier.Classify(context.Background(), subject, "", "a@b.c")
		if !utf8.ValidString(cls.SuggestedTitle) {
			t.Error("title contains invalid UTF-8 after truncation")
		}
		if len(cls.SuggestedTitle) > 100 {
			t.Errorf("title length = %d bytes, want <= 100", len(cls.SuggestedTitle))
		}
	})

	t.Run("empty subject falls back to placeholder", func(t *testing.T) {
		cls, _ := classifier.Classify(context.Background(), "", "the sap system is down", "a@b.c")
		if cls.SuggestedTitle != "Email Inquiry" {
			t.Errorf("title = %q, want Email Inquiry", cls.SuggestedTitle)
		}
	})
}
