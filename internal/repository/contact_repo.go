package repository

import (
	"context"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"gorm.io/gorm"
)

type ContactRepository interface {
	ListSubscribedByUser(ctx context.Context, userID string) ([]domain.Contact, error)
}

type GormContactRepo struct {
	db *gorm.DB
}

func NewGormContactRepo(db *gorm.DB) *GormContactRepo {
	return &GormContactRepo{db: db}
}

func (r *GormContactRepo) ListSubscribedByUser(ctx context.Context, userID string) ([]domain.Contact, error) {
	var models []ContactModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND unsubscribed = ?", userID, false).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, len(models))
	for i := range models {
		contacts = append(contacts, *contactModelToDomain(&models[i]))
	}

	return contacts, nil
}
