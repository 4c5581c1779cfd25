package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// SentEmailStatus represents the delivery state of a single outbound email.
type SentEmailStatus string

const (
	SentEmailStatusPending   SentEmailStatus = "pending"
	SentEmailStatusSent      SentEmailStatus = "sent"
	SentEmailStatusDelivered SentEmailStatus = "delivered"
	SentEmailStatusFailed    SentEmailStatus = "failed"
	SentEmailStatusBounced   SentEmailStatus = "bounced"
)

func (s SentEmailStatus) String() string { return string(s) }

func (s SentEmailStatus) IsValid() bool {
	switch s {
	case SentEmailStatusPending, SentEmailStatusSent, SentEmailStatusDelivered, SentEmailStatusFailed, SentEmailStatusBounced:
		return true
	}
	return false
}

// rank orders statuses along pending -> sent -> delivered -> {bounced, failed}.
func (s SentEmailStatus) rank() int {
	switch s {
	case SentEmailStatusPending:
		return 0
	case SentEmailStatusSent:
		return 1
	case SentEmailStatusDelivered:
		return 2
	case SentEmailStatusBounced, SentEmailStatusFailed:
		return 3
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s SentEmailStatus) IsTerminal() bool {
	return s == SentEmailStatusBounced || s == SentEmailStatusFailed
}

// CanTransitionTo reports whether moving from s to next moves strictly forward.
// Repeating the current status is not a transition.
func (s SentEmailStatus) CanTransitionTo(next SentEmailStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() > s.rank()
}

// PredecessorsOf lists the statuses a record may hold for next to be applied.
func PredecessorsOf(next SentEmailStatus) []SentEmailStatus {
	all := []SentEmailStatus{
		SentEmailStatusPending,
		SentEmailStatusSent,
		SentEmailStatusDelivered,
		SentEmailStatusFailed,
		SentEmailStatusBounced,
	}

	out := make([]SentEmailStatus, 0, len(all))
	for _, s := range all {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

func ParseSentEmailStatusFromString(s string) (SentEmailStatus, error) {
	st := SentEmailStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid email status %q", ErrValidation, s)
	}
	return st, nil
}

// Attachment is a file carried by an outbound email, content base64 encoded.
type Attachment struct {
	Filename    string
	Content     string
	ContentType string
}

// OutboundMessage is the value handed to the provider for one send.
type OutboundMessage struct {
	To         string
	ToName     string
	Subject    string
	HTML       string
	Text       string
	From       string
	ReplyTo    string
	CampaignID *string
	UserID     string

	Attachments []Attachment
}

const MaxSubjectLength = 998

func (m *OutboundMessage) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: invalid recipient address %q", ErrValidation, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if len([]rune(m.Subject)) > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters", ErrValidation, MaxSubjectLength)
	}
	if strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: html or text content is required", ErrValidation)
	}
	for i, a := range m.Attachments {
		if strings.TrimSpace(a.Filename) == "" {
			return fmt.Errorf("%w: attachment %d filename is required", ErrValidation, i)
		}
		if a.Content == "" {
			return fmt.Errorf("%w: attachment %q content is required", ErrValidation, a.Filename)
		}
	}
	return nil
}

// SentEmail is one row of the delivery ledger.
type SentEmail struct {
	ID                string
	CampaignID        *string
	UserID            string
	RecipientEmail    string
	RecipientName     *string
	Subject           string
	Content           string
	Status            SentEmailStatus
	ProviderMessageID *string
	ErrorMessage      *string
	SentAt            *time.Time
	DeliveredAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
