package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

const DefaultSignatureTolerance = 5 * time.Minute

var (
	ErrMissingSignatureHeaders = fmt.Errorf("%w: missing webhook signature headers", domain.ErrUnauthorized)
	ErrInvalidSignature        = fmt.Errorf("%w: webhook signature mismatch", domain.ErrUnauthorized)
	ErrSignatureTimestamp      = fmt.Errorf("%w: webhook timestamp outside tolerance", domain.ErrUnauthorized)
)

// SignatureHeaders are the Svix delivery headers sent with every webhook.
type SignatureHeaders struct {
	ID        string
	Timestamp string
	Signature string
}

func (h SignatureHeaders) complete() bool {
	return strings.TrimSpace(h.ID) != "" && strings.TrimSpace(h.Timestamp) != "" && strings.TrimSpace(h.Signature) != ""
}

func (h SignatureHeaders) httpHeader() http.Header {
	header := make(http.Header, 3)
	header.Set("svix-id", strings.TrimSpace(h.ID))
	header.Set("svix-timestamp", strings.TrimSpace(h.Timestamp))
	header.Set("svix-signature", strings.TrimSpace(h.Signature))
	return header
}

// SignatureVerifier checks Svix webhook signatures. The timestamp window is
// enforced here against an injectable clock; the signature itself is checked
// by the Svix library.
type SignatureVerifier struct {
	webhook   *svix.Webhook
	tolerance time.Duration
	now       func() time.Time
}

func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", domain.ErrConfiguration)
	}

	wh, err := svix.NewWebhook(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid webhook secret: %v", domain.ErrConfiguration, err)
	}

	return &SignatureVerifier{
		webhook:   wh,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}, nil
}

// Verify returns nil when one of the v1 signatures matches the payload.
func (v *SignatureVerifier) Verify(headers SignatureHeaders, body []byte) error {
	if v == nil || v.webhook == nil {
		return fmt.Errorf("%w: webhook verifier is not configured", domain.ErrUnauthorized)
	}
	if !headers.complete() {
		return ErrMissingSignatureHeaders
	}

	seconds, err := strconv.ParseInt(strings.TrimSpace(headers.Timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureTimestamp, err)
	}
	sentAt := time.Unix(seconds, 0)
	now := v.now()
	if sentAt.Before(now.Add(-v.tolerance)) || sentAt.After(now.Add(v.tolerance)) {
		return ErrSignatureTimestamp
	}

	if err := v.webhook.VerifyIgnoringTimestamp(body, headers.httpHeader()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Sign produces delivery headers for the payload, used by tests and local tooling.
func (v *SignatureVerifier) Sign(id string, timestamp time.Time, body []byte) (SignatureHeaders, error) {
	if v == nil || v.webhook == nil {
		return SignatureHeaders{}, fmt.Errorf("%w: webhook verifier is not configured", domain.ErrConfiguration)
	}

	signature, err := v.webhook.Sign(id, timestamp, body)
	if err != nil {
		return SignatureHeaders{}, fmt.Errorf("failed to sign webhook payload: %w", err)
	}
	return SignatureHeaders{
		ID:        id,
		Timestamp: strconv.FormatInt(timestamp.Unix(), 10),
		Signature: signature,
	}, nil
}

// IsSignatureError reports whether err came from signature verification.
func IsSignatureError(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}
