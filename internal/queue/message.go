package queue

import (
	"fmt"
	"strings"
	"time"
)

// Job sources recorded on a dispatch message.
const (
	SourceAPI       = "api"
	SourceScheduler = "scheduler"
)

// CampaignDispatchMessage is the broker payload asking a worker to send a campaign.
type CampaignDispatchMessage struct {
	CampaignID    string    `json:"campaignId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Source        string    `json:"source,omitempty"`
	RequestedAt   time.Time `json:"requestedAt"`
}

func (m CampaignDispatchMessage) Validate() error {
	if strings.TrimSpace(m.CampaignID) == "" {
		return fmt.Errorf("campaignId is required")
	}
	switch m.Source {
	case "", SourceAPI, SourceScheduler:
	default:
		return fmt.Errorf("invalid source %q", m.Source)
	}
	return nil
}
