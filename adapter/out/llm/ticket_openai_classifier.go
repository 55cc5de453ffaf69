// Package llm implements the primary classifier adapter over OpenAI.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"ticket_worker/core/domain"
	"ticket_worker/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
	maxPromptBodyLen = 3000
)

const systemPrompt = `You are an SAP support ticket classifier. Analyze emails and determine:
1. If it's related to SAP systems
2. Which SAP module it belongs to (MM, SD, FICO, PP, HCM, PM, QM, WM, PS, BW, ABAP, BASIS, or OTHER)
3. The priority level (Low, Medium, High, Critical)
4. A concise ticket title
5. Key points from the email

Respond ONLY with valid JSON in this exact format:
{
    "is_sap_related": true/false,
    "confidence": 0.0-1.0,
    "category": "MM/SD/FICO/PP/HCM/PM/QM/WM/PS/BW/ABAP/BASIS/OTHER",
    "priority": "Low/Medium/High/Critical",
    "suggested_title": "Brief descriptive title",
    "key_points": ["point 1", "point 2", "point 3"]
}`

// analysisResponse mirrors the JSON contract of the system prompt.
type analysisResponse struct {
	IsSAPRelated   bool     `json:"is_sap_related"`
	Confidence     float64  `json:"confidence"`
	Category       string   `json:"category"`
	Priority       string   `json:"priority"`
	SuggestedTitle string   `json:"suggested_title"`
	KeyPoints      []string `json:"key_points"`
}

// Config holds OpenAI classifier configuration.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClassifier implements out.Classifier over the OpenAI chat API.
// Every call carries a hard timeout, and a circuit breaker sheds load
// during an outage so the decision engine drops to the keyword fallback
// immediately instead of waiting out each timeout.
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	cb          *gobreaker.CircuitBreaker
}

// NewOpenAIClassifier creates a new classifier adapter.
func NewOpenAIClassifier(cfg Config) *OpenAIClassifier {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cbSettings := gobreaker.Settings{
		Name:     "openai-classifier",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[OpenAIClassifier] circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &OpenAIClassifier{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// Classify sends the message to the model and parses the structured
// judgment. Failures map onto the classifier error taxonomy so the
// engine can recover uniformly.
func (c *OpenAIClassifier) Classify(ctx context.Context, subject, body, sender string) (*domain.Classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.complete(callCtx, subject, body, sender)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", domain.ErrClassifierUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrClassifierTimeout, err)
		}
		return nil, err
	}

	content := result.(string)
	return c.parseResponse(content)
}

func (c *OpenAIClassifier) complete(ctx context.Context, subject, body, sender string) (string, error) {
	truncated := truncateBody(body, maxPromptBodyLen)

	userPrompt := fmt.Sprintf(`Analyze this email for SAP support ticket creation:

FROM: %s
SUBJECT: %s

BODY:
%s

Determine if this is SAP-related, classify the module, assess priority, and suggest a ticket title.`,
		sender, subject, truncated)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", domain.ErrClassifierMalformed)
	}

	return resp.Choices[0].Message.Content, nil
}

// parseResponse decodes the model output. Markdown fences are stripped
// and a bare JSON object is extracted from surrounding prose before
// giving up.
func (c *OpenAIClassifier) parseResponse(content string) (*domain.Classification, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp analysisResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		extracted, ok := extractJSONObject(cleaned)
		if !ok {
			return nil, fmt.Errorf("%w: %v", domain.ErrClassifierMalformed, err)
		}
		if err := json.Unmarshal([]byte(extracted), &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrClassifierMalformed, err)
		}
	}

	var raw map[string]any
	_ = json.Unmarshal([]byte(cleaned), &raw)
	if raw == nil {
		var extracted string
		extracted, _ = extractJSONObject(cleaned)
		_ = json.Unmarshal([]byte(extracted), &raw)
	}

	cls := &domain.Classification{
		IsActionable:   resp.IsSAPRelated,
		SuggestedTitle: resp.SuggestedTitle,
		KeyPoints:      resp.KeyPoints,
		Confidence:     resp.Confidence,
		RawResponse:    raw,
		Source:         "llm",
	}

	if resp.IsSAPRelated && resp.Category != "" {
		category := domain.ParseTicketCategory(resp.Category)
		cls.Category = &category
	}
	if resp.Priority != "" {
		priority := domain.ParseTicketPriority(resp.Priority)
		cls.SuggestedPriority = &priority
	}

	return cls, nil
}

// truncateBody caps the prompt body at max bytes, backing off to a rune
// boundary so the cut never produces invalid UTF-8.
func truncateBody(body string, max int) string {
	if len(body) <= max {
		return body
	}
	for max > 0 && !utf8.RuneStart(body[max]) {
		max--
	}
	return body[:max] + "..."
}

// extractJSONObject finds the first top-level {...} span in the text.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
