package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign, derived from dispatch results.
type CampaignStatus string

const (
	CampaignStatusDraft         CampaignStatus = "draft"
	CampaignStatusScheduled     CampaignStatus = "scheduled"
	CampaignStatusSending       CampaignStatus = "sending"
	CampaignStatusSent          CampaignStatus = "sent"
	CampaignStatusPartiallySent CampaignStatus = "partially_sent"
	CampaignStatusFailed        CampaignStatus = "failed"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusSending,
		CampaignStatusSent, CampaignStatusPartiallySent, CampaignStatusFailed:
		return true
	}
	return false
}

// SendableCampaignStatuses lists the states from which a dispatch may start.
func SendableCampaignStatuses() []CampaignStatus {
	return []CampaignStatus{CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusFailed}
}

func (s CampaignStatus) IsSendable() bool {
	for _, st := range SendableCampaignStatuses() {
		if s == st {
			return true
		}
	}
	return false
}

func ParseCampaignStatusFromString(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign status %q", ErrValidation, s)
	}
	return st, nil
}

// CampaignStatusFromResult maps an aggregate dispatch result to the final campaign state.
func CampaignStatusFromResult(result DispatchResult) CampaignStatus {
	switch {
	case result.Failed == 0 && result.Sent > 0:
		return CampaignStatusSent
	case result.Sent > 0:
		return CampaignStatusPartiallySent
	default:
		return CampaignStatusFailed
	}
}

type Campaign struct {
	ID          string
	UserID      string
	Name        string
	Subject     string
	Content     string
	Text        *string
	Status      CampaignStatus
	ScheduledAt *time.Time
	SentAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Contact struct {
	ID           string
	UserID       string
	Email        string
	FirstName    *string
	LastName     *string
	Company      *string
	Unsubscribed bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName joins first and last name, empty when neither is set.
func (c Contact) DisplayName() string {
	parts := make([]string, 0, 2)
	if c.FirstName != nil && strings.TrimSpace(*c.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*c.FirstName))
	}
	if c.LastName != nil && strings.TrimSpace(*c.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*c.LastName))
	}
	return strings.Join(parts, " ")
}
