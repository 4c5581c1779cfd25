package repository

import (
	"context"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"gorm.io/gorm"
)

type DeliveryEventRepository interface {
	Create(ctx context.Context, e *domain.DeliveryEvent) error
	ListBySentEmailID(ctx context.Context, sentEmailID string) ([]domain.DeliveryEvent, error)
}

type GormDeliveryEventRepo struct {
	db *gorm.DB
}

func NewGormDeliveryEventRepo(db *gorm.DB) *GormDeliveryEventRepo {
	return &GormDeliveryEventRepo{db: db}
}

func (r *GormDeliveryEventRepo) Create(ctx context.Context, e *domain.DeliveryEvent) error {
	model := deliveryEventModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *deliveryEventModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryEventRepo) ListBySentEmailID(ctx context.Context, sentEmailID string) ([]domain.DeliveryEvent, error) {
	var models []DeliveryEventModel
	err := r.db.WithContext(ctx).
		Where("sent_email_id = ?", sentEmailID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.DeliveryEvent, 0, len(models))
	for i := range models {
		events = append(events, *deliveryEventModelToDomain(&models[i]))
	}

	return events, nil
}
