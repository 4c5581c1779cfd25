package provider

import (
	"context"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

// Provider is the outbound email delivery port.
type Provider interface {
	Send(ctx context.Context, message domain.OutboundMessage) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata. MessageID is the id later
// quoted by delivery webhooks.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
