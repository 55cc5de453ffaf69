package out

import (
	"context"

	"ticket_worker/core/domain"
)

// TicketRequest carries everything the external ticket store needs to
// open a ticket from one classified message.
type TicketRequest struct {
	Title             string
	Description       string
	Category          domain.TicketCategory
	Priority          domain.TicketPriority
	SourceFingerprint string
	SenderAddress     string
	SourceSubject     string
	Confidence        float64
	KeyPoints         []string
}

// TicketCreator is the external ticket-creation collaborator. A failure
// is reported as domain.ErrTicketCreationFailed (wrapped) and handled at
// message granularity; retry policy belongs to the ticket store, not here.
type TicketCreator interface {
	CreateTicket(ctx context.Context, req *TicketRequest) (ticketRef string, err error)
}
