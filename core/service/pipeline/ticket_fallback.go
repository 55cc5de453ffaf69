// Package pipeline implements the email-to-ticket decision pipeline:
// dedup, classification with fallback, threshold decision and batch
// coordination.
package pipeline

import (
	"context"
	"strings"

	"ticket_worker/core/domain"
)

// =============================================================================
// Keyword Fallback Classifier
// =============================================================================

// actionableIndicators are the base signals that a message concerns the
// SAP landscape at all.
var actionableIndicators = []string{
	"sap", "erp", "transaction", "t-code", "abap", "fiori", "hana",
}

// moduleKeywords maps each SAP module to its vocabulary. Any hit marks
// the message actionable; the table doubles as the fixed keyword set of
// the fallback rule.
var moduleKeywords = map[domain.TicketCategory][]string{
	domain.CategoryMM: {
		"material", "purchase", "procurement", "vendor", "inventory",
		"goods receipt", "purchase order", "material master",
		"stock", "warehouse", "mrp", "purchase requisition",
		"invoice verification", "source list", "quota arrangement",
	},
	domain.CategorySD: {
		"sales", "distribution", "customer", "delivery",
		"billing", "invoice", "pricing", "sales order",
		"quotation", "inquiry", "shipment", "shipping", "credit memo",
		"returns", "consignment", "third party",
	},
	domain.CategoryFICO: {
		"finance", "accounting", "controlling", "cost center", "profit center",
		"general ledger", "accounts payable", "accounts receivable",
		"asset accounting", "fixed asset", "financial statement", "budget",
		"internal order", "cost element", "closing", "reconciliation",
	},
	domain.CategoryPP: {
		"production", "planning", "manufacturing", "bill of material",
		"routing", "work center", "capacity", "production order", "shop floor",
		"demand management", "scheduling",
	},
	domain.CategoryHCM: {
		"human resources", "payroll", "employee", "personnel",
		"time management", "attendance", "recruitment", "training",
		"organizational management", "benefits", "compensation",
	},
	domain.CategoryPM: {
		"plant maintenance", "maintenance", "equipment", "functional location",
		"work order", "preventive maintenance", "breakdown",
		"calibration", "inspection", "repair",
	},
	domain.CategoryQM: {
		"quality", "quality management", "quality notification",
		"inspection lot", "quality certificate", "audit",
		"control chart", "quality planning",
	},
	domain.CategoryWM: {
		"warehouse management", "storage bin", "transfer order",
		"putaway", "picking", "goods movement", "storage type",
	},
	domain.CategoryPS: {
		"project system", "work breakdown structure",
		"milestone", "project planning", "project budget",
	},
	domain.CategoryBW: {
		"business warehouse", "business intelligence",
		"data warehouse", "infocube", "data extraction",
	},
	domain.CategoryABAP: {
		"abap", "function module", "bapi", "enhancement",
		"user exit", "badi", "smartform", "sapscript",
	},
	domain.CategoryBASIS: {
		"basis", "transport", "authorization", "background job",
		"upgrade", "installation", "user management",
	},
}

// priorityIndicators maps priority levels to their trigger phrases,
// checked in order of severity.
var priorityIndicators = []struct {
	priority domain.TicketPriority
	keywords []string
}{
	{domain.PriorityCritical, []string{
		"urgent", "critical", "emergency", "asap", "immediately", "down",
		"not working", "stopped", "blocked", "production issue", "showstopper",
	}},
	{domain.PriorityHigh, []string{
		"important", "high priority", "soon", "affecting", "impact",
		"multiple users", "deadline", "pressing",
	}},
	{domain.PriorityLow, []string{
		"minor", "cosmetic", "enhancement", "nice to have", "when possible",
		"low priority", "no rush",
	}},
}

// fallbackConfidence is the fixed confidence of a keyword match. It sits
// below the creation threshold on purpose: a degraded run still emits
// decision records but never auto-creates tickets on keywords alone.
const fallbackConfidence = 0.5

// KeywordClassifier is the deterministic fallback invoked when the
// primary classifier fails. It never returns an error; it is the
// guaranteed terminal step so the engine always obtains a classification
// for a non-duplicate message.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (k *KeywordClassifier) Classify(ctx context.Context, subject, body, sender string) (*domain.Classification, error) {
	text := strings.ToLower(subject + " " + body)

	matches := 0
	for _, kw := range actionableIndicators {
		if strings.Contains(text, kw) {
			matches++
		}
	}
	for _, keywords := range moduleKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				matches++
			}
		}
	}

	if matches == 0 {
		return &domain.Classification{
			IsActionable: false,
			Confidence:   0.0,
			RawResponse:  map[string]any{"method": "keyword_based", "matches": 0},
			Source:       "keyword",
		}, nil
	}

	title := strings.TrimSpace(subject)
	if title == "" {
		title = "Email Inquiry"
	}
	title = truncate(title, 100)

	priority := detectPriority(text)

	return &domain.Classification{
		IsActionable:      true,
		Category:          nil, // keyword rule never assigns a module
		SuggestedTitle:    title,
		SuggestedPriority: &priority,
		Confidence:        fallbackConfidence,
		RawResponse:       map[string]any{"method": "keyword_based", "matches": matches},
		Source:            "keyword",
	}, nil
}

func detectPriority(text string) domain.TicketPriority {
	for _, group := range priorityIndicators {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.priority
			}
		}
	}
	return domain.PriorityMedium
}
