// Package provider implements mailbox source adapters.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"ticket_worker/core/domain"

	"golang.org/x/oauth2/clientcredentials"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphConfig holds Microsoft Graph application credentials and the
// mailbox to poll.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string
	Folder       string
}

// GraphSource pulls messages from a Microsoft 365 mailbox over the
// Graph API using app-only client credentials.
type GraphSource struct {
	client  *http.Client
	mailbox string
	folder  string
}

// NewGraphSource creates a Graph mailbox source. The oauth2 client
// refreshes the app token transparently.
func NewGraphSource(ctx context.Context, cfg GraphConfig) (*GraphSource, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("graph source requires tenant ID, client ID and client secret")
	}
	if cfg.Mailbox == "" {
		return nil, fmt.Errorf("graph source requires a mailbox address")
	}

	folder := cfg.Folder
	if folder == "" {
		folder = "inbox"
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	return &GraphSource{
		client:  creds.Client(ctx),
		mailbox: cfg.Mailbox,
		folder:  folder,
	}, nil
}

// Name implements out.MessageSource.
func (s *GraphSource) Name() string {
	return "graph"
}

// Pull implements out.MessageSource. It fetches messages received in
// [windowStart, windowEnd), newest first, capped at maxCount.
func (s *GraphSource) Pull(ctx context.Context, windowStart, windowEnd time.Time, maxCount int) ([]*domain.Message, error) {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", maxCount))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s and receivedDateTime lt %s",
		windowStart.UTC().Format(time.RFC3339), windowEnd.UTC().Format(time.RFC3339)))
	params.Set("$select", "id,subject,bodyPreview,body,from,receivedDateTime,internetMessageId")

	path := fmt.Sprintf("/users/%s/mailFolders/%s/messages?%s",
		url.PathEscape(s.mailbox), url.PathEscape(s.folder), params.Encode())

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := s.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	messages := make([]*domain.Message, 0, len(resp.Value))
	for _, m := range resp.Value {
		messages = append(messages, convertGraphMessage(&m))
	}
	return messages, nil
}

func (s *GraphSource) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", graphBaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph API error: %d - %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// Graph API types

type graphMessage struct {
	ID                string         `json:"id"`
	Subject           string         `json:"subject"`
	BodyPreview       string         `json:"bodyPreview"`
	Body              graphBody      `json:"body"`
	From              graphRecipient `json:"from"`
	ReceivedDateTime  string         `json:"receivedDateTime"`
	InternetMessageID string         `json:"internetMessageId"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func convertGraphMessage(m *graphMessage) *domain.Message {
	receivedAt, _ := time.Parse(time.RFC3339, m.ReceivedDateTime)
	sender := m.From.EmailAddress.Address

	body := m.Body.Content
	if strings.EqualFold(m.Body.ContentType, "html") {
		body = stripHTML(body)
		if strings.TrimSpace(body) == "" {
			body = m.BodyPreview
		}
	}

	fingerprint := ""
	if m.InternetMessageID != "" {
		fingerprint = domain.MessageIDFingerprint(m.InternetMessageID)
	} else {
		fingerprint = domain.ContentFingerprint(m.Subject, sender, receivedAt, body)
	}

	return &domain.Message{
		Fingerprint:   fingerprint,
		Subject:       m.Subject,
		Body:          body,
		SenderAddress: sender,
		ReceivedAt:    receivedAt,
	}
}

// stripHTML reduces an HTML body to plain text. Tags are dropped and
// block elements become line breaks; good enough for classification,
// not a renderer.
func stripHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	var tag strings.Builder
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>' && inTag:
			inTag = false
			name := strings.ToLower(strings.TrimSpace(tag.String()))
			name = strings.TrimPrefix(name, "/")
			if i := strings.IndexAny(name, " \t\n/"); i >= 0 {
				name = name[:i]
			}
			switch name {
			case "p", "br", "div", "tr", "li":
				b.WriteByte('\n')
			}
		case inTag:
			tag.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}

	text := b.String()
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)

	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
