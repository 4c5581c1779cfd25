package domain

import "time"

// NotificationType classifies a user-facing notification.
type NotificationType string

const (
	NotificationTypeSuccess        NotificationType = "success"
	NotificationTypeError          NotificationType = "error"
	NotificationTypeCampaignUpdate NotificationType = "campaign_update"
)

func (t NotificationType) String() string { return string(t) }

// Notification is an in-app message addressed to the owner of a sent email or campaign.
type Notification struct {
	ID          string
	UserID      string
	Type        NotificationType
	Title       string
	Message     string
	SentEmailID *string
	CampaignID  *string
	Read        bool
	CreatedAt   time.Time
}
