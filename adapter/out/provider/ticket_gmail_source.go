package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"ticket_worker/core/domain"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConfig holds Gmail API credentials and the mailbox to poll.
type GmailConfig struct {
	CredentialsJSON string
	UserID          string
}

// GmailSource pulls messages from a Gmail mailbox.
type GmailSource struct {
	service *gmail.Service
	userID  string
}

// NewGmailSource creates a Gmail mailbox source.
func NewGmailSource(ctx context.Context, cfg GmailConfig) (*GmailSource, error) {
	if cfg.CredentialsJSON == "" {
		return nil, fmt.Errorf("gmail source requires credentials JSON")
	}

	userID := cfg.UserID
	if userID == "" {
		userID = "me"
	}

	service, err := gmail.NewService(ctx,
		option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)),
		option.WithScopes(gmail.GmailReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &GmailSource{
		service: service,
		userID:  userID,
	}, nil
}

// Name implements out.MessageSource.
func (s *GmailSource) Name() string {
	return "gmail"
}

// Pull implements out.MessageSource. Gmail search granularity is one
// second, so the window bounds are expressed as epoch seconds.
func (s *GmailSource) Pull(ctx context.Context, windowStart, windowEnd time.Time, maxCount int) ([]*domain.Message, error) {
	query := fmt.Sprintf("after:%d before:%d", windowStart.UTC().Unix(), windowEnd.UTC().Unix())

	list, err := s.service.Users.Messages.List(s.userID).
		Q(query).
		MaxResults(int64(maxCount)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	messages := make([]*domain.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		full, err := s.service.Users.Messages.Get(s.userID, ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		messages = append(messages, convertGmailMessage(full))
	}

	return messages, nil
}

func convertGmailMessage(msg *gmail.Message) *domain.Message {
	var subject, sender, messageID string
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				subject = header.Value
			case "From":
				sender = extractAddress(header.Value)
			case "Message-ID", "Message-Id":
				messageID = header.Value
			}
		}
	}

	html, text := extractGmailBody(msg.Payload)
	body := text
	if body == "" && html != "" {
		body = stripHTML(html)
	}
	if body == "" {
		body = msg.Snippet
	}

	receivedAt := time.Unix(msg.InternalDate/1000, 0).UTC()

	fingerprint := ""
	if messageID != "" {
		fingerprint = domain.MessageIDFingerprint(messageID)
	} else {
		fingerprint = domain.ContentFingerprint(subject, sender, receivedAt, body)
	}

	return &domain.Message{
		Fingerprint:   fingerprint,
		Subject:       subject,
		Body:          body,
		SenderAddress: sender,
		ReceivedAt:    receivedAt,
	}
}

func extractGmailBody(payload *gmail.MessagePart) (html, text string) {
	if payload == nil {
		return "", ""
	}

	if payload.MimeType == "text/html" && payload.Body != nil {
		data, _ := base64.URLEncoding.DecodeString(payload.Body.Data)
		html = string(data)
	}
	if payload.MimeType == "text/plain" && payload.Body != nil {
		data, _ := base64.URLEncoding.DecodeString(payload.Body.Data)
		text = string(data)
	}

	for _, part := range payload.Parts {
		h, t := extractGmailBody(part)
		if html == "" && h != "" {
			html = h
		}
		if text == "" && t != "" {
			text = t
		}
	}

	return html, text
}

// extractAddress pulls the bare address out of a "Name <addr>" header.
func extractAddress(from string) string {
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.LastIndex(from, ">"); end > start {
			return strings.TrimSpace(from[start+1 : end])
		}
	}
	return strings.TrimSpace(from)
}
