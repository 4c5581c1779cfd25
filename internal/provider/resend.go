package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

const (
	defaultResendTimeout = 10 * time.Second
	DefaultResendBaseURL = "https://api.resend.com"
)

var (
	htmlTagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRunPattern   = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

type resendAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html,omitempty"`
	Text        string             `json:"text,omitempty"`
	ReplyTo     string             `json:"reply_to,omitempty"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// ResendConfig holds the account settings used for every send.
type ResendConfig struct {
	APIKey  string
	BaseURL string
	From    string
	ReplyTo string
}

// ResendProvider sends email through the Resend HTTP API.
type ResendProvider struct {
	client   *resty.Client
	endpoint string
	from     string
	replyTo  string
}

func NewResendProvider(cfg ResendConfig) (*ResendProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultResendTimeout)
	client.SetRetryCount(0)

	return NewResendProviderWithClient(cfg, client)
}

func NewResendProviderWithClient(cfg ResendConfig, client *resty.Client) (*ResendProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: resend api key is required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("%w: default sender is required", domain.ErrConfiguration)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid resend api url: %v", domain.ErrConfiguration, err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultResendTimeout)
	}
	client.SetRetryCount(0)
	client.SetAuthToken(apiKey)

	return &ResendProvider{
		client:   client,
		endpoint: baseURL + "/emails",
		from:     strings.TrimSpace(cfg.From),
		replyTo:  strings.TrimSpace(cfg.ReplyTo),
	}, nil
}

func (p *ResendProvider) Send(ctx context.Context, message domain.OutboundMessage) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := message.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(p.buildRequest(message)).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	// Non-JSON bodies (proxies, gateways) are reported through responseBody.
	var decoded resendResponse
	if responseBody != "" {
		if err := json.Unmarshal(response.Body(), &decoded); err != nil {
			decoded = resendResponse{}
		}
	}

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := strings.TrimSpace(decoded.ID)
		if messageID == "" {
			return nil, &ProviderError{
				StatusCode: statusCode,
				Message:    "provider response did not include a message id",
			}
		}
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  messageID,
		}, nil
	}

	return nil, newHTTPError(statusCode, decoded.Name, providerErrorMessage(statusCode, decoded.Message, responseBody))
}

func (p *ResendProvider) buildRequest(message domain.OutboundMessage) resendRequest {
	from := strings.TrimSpace(message.From)
	if from == "" {
		from = p.from
	}
	replyTo := strings.TrimSpace(message.ReplyTo)
	if replyTo == "" {
		replyTo = p.replyTo
	}
	text := message.Text
	if strings.TrimSpace(text) == "" {
		text = PlainTextFromHTML(message.HTML)
	}

	to := strings.TrimSpace(message.To)
	if name := strings.TrimSpace(message.ToName); name != "" {
		to = (&mail.Address{Name: name, Address: to}).String()
	}

	req := resendRequest{
		From:    from,
		To:      []string{to},
		Subject: message.Subject,
		HTML:    message.HTML,
		Text:    text,
		ReplyTo: replyTo,
	}
	for _, a := range message.Attachments {
		req.Attachments = append(req.Attachments, resendAttachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}
	return req
}

// PlainTextFromHTML derives a text alternative by dropping tags and entities.
func PlainTextFromHTML(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	replacer := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n", "</div>", "\n")
	text := replacer.Replace(body)
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankRunPattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = blankLinesPattern.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

func providerErrorMessage(statusCode int, message string, body string) string {
	if msg := strings.TrimSpace(message); msg != "" {
		return msg
	}
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
