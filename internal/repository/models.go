package repository

import (
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

// SentEmailModel is the persistence model for the sent_emails ledger.
type SentEmailModel struct {
	ID                string                 `gorm:"type:uuid;primaryKey"`
	CampaignID        *string                `gorm:"type:uuid"`
	UserID            string                 `gorm:"type:varchar(64);not null"`
	RecipientEmail    string                 `gorm:"type:varchar(320);not null"`
	RecipientName     *string                `gorm:"type:varchar(255)"`
	Subject           string                 `gorm:"type:varchar(998);not null"`
	Content           string                 `gorm:"type:text;not null"`
	Status            domain.SentEmailStatus `gorm:"type:varchar(20);not null"`
	ProviderMessageID *string                `gorm:"type:varchar(255)"`
	ErrorMessage      *string                `gorm:"type:text"`
	SentAt            *time.Time             `gorm:"type:timestamptz"`
	DeliveredAt       *time.Time             `gorm:"type:timestamptz"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SentEmailModel) TableName() string {
	return "sent_emails"
}

// CampaignModel is the persistence model for campaigns.
type CampaignModel struct {
	ID          string                `gorm:"type:uuid;primaryKey"`
	UserID      string                `gorm:"type:varchar(64);not null"`
	Name        string                `gorm:"type:varchar(255);not null"`
	Subject     string                `gorm:"type:varchar(998);not null"`
	Content     string                `gorm:"type:text;not null"`
	Text        *string               `gorm:"type:text"`
	Status      domain.CampaignStatus `gorm:"type:varchar(20);not null"`
	ScheduledAt *time.Time            `gorm:"type:timestamptz"`
	SentAt      *time.Time            `gorm:"type:timestamptz"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// ContactModel is the persistence model for contacts.
type ContactModel struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	UserID       string  `gorm:"type:varchar(64);not null"`
	Email        string  `gorm:"type:varchar(320);not null"`
	FirstName    *string `gorm:"type:varchar(255)"`
	LastName     *string `gorm:"type:varchar(255)"`
	Company      *string `gorm:"type:varchar(255)"`
	Unsubscribed bool    `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

// NotificationModel is the persistence model for in-app notifications.
type NotificationModel struct {
	ID          string                  `gorm:"type:uuid;primaryKey"`
	UserID      string                  `gorm:"type:varchar(64);not null"`
	Type        domain.NotificationType `gorm:"type:varchar(20);not null"`
	Title       string                  `gorm:"type:varchar(255);not null"`
	Message     string                  `gorm:"type:text;not null"`
	SentEmailID *string                 `gorm:"type:uuid"`
	CampaignID  *string                 `gorm:"type:uuid"`
	Read        bool                    `gorm:"column:is_read;not null;default:false"`
	CreatedAt   time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryEventModel is the persistence model for delivery_events.
type DeliveryEventModel struct {
	ID                string  `gorm:"type:uuid;primaryKey"`
	DeliveryID        *string `gorm:"type:varchar(255)"`
	ProviderMessageID string  `gorm:"type:varchar(255);not null"`
	SentEmailID       *string `gorm:"type:uuid"`
	Kind              string  `gorm:"type:varchar(64);not null"`
	Applied           bool    `gorm:"not null;default:false"`
	PreviousStatus    *string `gorm:"type:varchar(20)"`
	Reason            *string `gorm:"type:text"`
	OccurredAt        *time.Time
	CreatedAt         time.Time
}

func (DeliveryEventModel) TableName() string {
	return "delivery_events"
}

func sentEmailModelFromDomain(e *domain.SentEmail) *SentEmailModel {
	if e == nil {
		return nil
	}

	return &SentEmailModel{
		ID:                e.ID,
		CampaignID:        e.CampaignID,
		UserID:            e.UserID,
		RecipientEmail:    e.RecipientEmail,
		RecipientName:     e.RecipientName,
		Subject:           e.Subject,
		Content:           e.Content,
		Status:            e.Status,
		ProviderMessageID: e.ProviderMessageID,
		ErrorMessage:      e.ErrorMessage,
		SentAt:            e.SentAt,
		DeliveredAt:       e.DeliveredAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func sentEmailModelToDomain(m *SentEmailModel) *domain.SentEmail {
	if m == nil {
		return nil
	}

	return &domain.SentEmail{
		ID:                m.ID,
		CampaignID:        m.CampaignID,
		UserID:            m.UserID,
		RecipientEmail:    m.RecipientEmail,
		RecipientName:     m.RecipientName,
		Subject:           m.Subject,
		Content:           m.Content,
		Status:            m.Status,
		ProviderMessageID: m.ProviderMessageID,
		ErrorMessage:      m.ErrorMessage,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	return &domain.Campaign{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Subject:     m.Subject,
		Content:     m.Content,
		Text:        m.Text,
		Status:      m.Status,
		ScheduledAt: m.ScheduledAt,
		SentAt:      m.SentAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	if m == nil {
		return nil
	}

	return &domain.Contact{
		ID:           m.ID,
		UserID:       m.UserID,
		Email:        m.Email,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Company:      m.Company,
		Unsubscribed: m.Unsubscribed,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		SentEmailID: n.SentEmailID,
		CampaignID:  n.CampaignID,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        m.Type,
		Title:       m.Title,
		Message:     m.Message,
		SentEmailID: m.SentEmailID,
		CampaignID:  m.CampaignID,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt,
	}
}

func deliveryEventModelFromDomain(e *domain.DeliveryEvent) *DeliveryEventModel {
	if e == nil {
		return nil
	}

	var previous *string
	if e.PreviousStatus != nil {
		s := e.PreviousStatus.String()
		previous = &s
	}

	return &DeliveryEventModel{
		ID:                e.ID,
		DeliveryID:        e.DeliveryID,
		ProviderMessageID: e.ProviderMessageID,
		SentEmailID:       e.SentEmailID,
		Kind:              e.Kind,
		Applied:           e.Applied,
		PreviousStatus:    previous,
		Reason:            e.Reason,
		OccurredAt:        e.OccurredAt,
		CreatedAt:         e.CreatedAt,
	}
}

func deliveryEventModelToDomain(m *DeliveryEventModel) *domain.DeliveryEvent {
	if m == nil {
		return nil
	}

	var previous *domain.SentEmailStatus
	if m.PreviousStatus != nil {
		s := domain.SentEmailStatus(*m.PreviousStatus)
		previous = &s
	}

	return &domain.DeliveryEvent{
		ID:                m.ID,
		DeliveryID:        m.DeliveryID,
		ProviderMessageID: m.ProviderMessageID,
		SentEmailID:       m.SentEmailID,
		Kind:              m.Kind,
		Applied:           m.Applied,
		PreviousStatus:    previous,
		Reason:            m.Reason,
		OccurredAt:        m.OccurredAt,
		CreatedAt:         m.CreatedAt,
	}
}
