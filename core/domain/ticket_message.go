package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Message is one unit of inbound content pulled from a mail source.
// Immutable once ingested; the decision engine references it, never owns it.
type Message struct {
	Fingerprint   string    `json:"fingerprint"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	SenderAddress string    `json:"sender_address"`
	ReceivedAt    time.Time `json:"received_at"`
}

// ContentFingerprint derives a stable fingerprint from message content.
// Used by source adapters when the provider does not supply a stable
// message ID. Two messages with equal fingerprint are the same message
// forever.
func ContentFingerprint(subject, sender string, receivedAt time.Time, body string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", subject, sender, receivedAt.UTC().Unix(), body)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// MessageIDFingerprint derives a fingerprint from a provider-assigned
// stable message ID, such as an RFC 5322 Message-ID. Hashing keeps the
// fingerprint column width fixed regardless of provider ID length.
func MessageIDFingerprint(messageID string) string {
	h := sha256.Sum256([]byte(messageID))
	return "sha256:" + hex.EncodeToString(h[:])
}

// TicketCategory is the SAP module a ticket is filed under.
type TicketCategory string

const (
	CategoryMM    TicketCategory = "MM"    // Materials Management
	CategorySD    TicketCategory = "SD"    // Sales and Distribution
	CategoryFICO  TicketCategory = "FICO"  // Finance and Controlling
	CategoryPP    TicketCategory = "PP"    // Production Planning
	CategoryHCM   TicketCategory = "HCM"   // Human Capital Management
	CategoryPM    TicketCategory = "PM"    // Plant Maintenance
	CategoryQM    TicketCategory = "QM"    // Quality Management
	CategoryWM    TicketCategory = "WM"    // Warehouse Management
	CategoryPS    TicketCategory = "PS"    // Project System
	CategoryBW    TicketCategory = "BW"    // Business Warehouse
	CategoryABAP  TicketCategory = "ABAP"  // Development
	CategoryBASIS TicketCategory = "BASIS" // System Administration
	CategoryOther TicketCategory = "OTHER"
)

// ParseTicketCategory maps a free-form category string to a known
// category, falling back to OTHER.
func ParseTicketCategory(s string) TicketCategory {
	switch TicketCategory(s) {
	case CategoryMM, CategorySD, CategoryFICO, CategoryPP, CategoryHCM,
		CategoryPM, CategoryQM, CategoryWM, CategoryPS, CategoryBW,
		CategoryABAP, CategoryBASIS:
		return TicketCategory(s)
	default:
		return CategoryOther
	}
}

// TicketPriority is the urgency level assigned to a ticket.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "Low"
	PriorityMedium   TicketPriority = "Medium"
	PriorityHigh     TicketPriority = "High"
	PriorityCritical TicketPriority = "Critical"
)

// ParseTicketPriority maps a free-form priority string to a known
// priority, falling back to Medium.
func ParseTicketPriority(s string) TicketPriority {
	switch TicketPriority(s) {
	case PriorityLow, PriorityHigh, PriorityCritical:
		return TicketPriority(s)
	default:
		return PriorityMedium
	}
}
