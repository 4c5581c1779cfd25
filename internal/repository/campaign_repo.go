package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"gorm.io/gorm"
)

type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	BeginSending(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error
	RollbackToDraft(ctx context.Context, id string) error
	GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
	ClearSchedule(ctx context.Context, id string) error
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

func (r *GormCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaignModelToDomain(&model), nil
}

// BeginSending claims the campaign for dispatch. Only one caller can win the claim.
func (r *GormCampaignRepo) BeginSending(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status IN ?", id, domain.SendableCampaignStatuses()).
		Update("status", domain.CampaignStatusSending)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormCampaignRepo) Finish(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error {
	columns := map[string]any{"status": status}
	if sentAt != nil {
		columns["sent_at"] = *sentAt
	}

	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ?", id, domain.CampaignStatusSending).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormCampaignRepo) RollbackToDraft(ctx context.Context, id string) error {
	return r.Finish(ctx, id, domain.CampaignStatusDraft, nil)
}

func (r *GormCampaignRepo) GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", domain.CampaignStatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}

	return campaigns, nil
}

func (r *GormCampaignRepo) ClearSchedule(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ?", id).
		Update("scheduled_at", nil).Error
}
