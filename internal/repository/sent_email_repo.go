package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"gorm.io/gorm"
)

type SentEmailListParams struct {
	UserID     string
	CampaignID *string
	Status     *domain.SentEmailStatus
	Page       int
	PageSize   int
}

// StatusCount is one row of a ledger aggregate grouped by status.
type StatusCount struct {
	Status domain.SentEmailStatus `gorm:"column:status"`
	Count  int64                  `gorm:"column:count"`
}

// TransitionUpdate carries the columns written alongside a webhook-driven status change.
type TransitionUpdate struct {
	Status       domain.SentEmailStatus
	ErrorMessage *string
	DeliveredAt  *time.Time
}

type SentEmailRepository interface {
	Create(ctx context.Context, e *domain.SentEmail) error
	GetByID(ctx context.Context, id string) (*domain.SentEmail, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SentEmail, error)
	MarkSent(ctx context.Context, id string, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	ApplyTransition(ctx context.Context, id string, update TransitionUpdate) (bool, error)
	List(ctx context.Context, params SentEmailListParams) ([]domain.SentEmail, int64, error)
	CountByStatus(ctx context.Context, campaignID string) ([]StatusCount, error)
}

type GormSentEmailRepo struct {
	db *gorm.DB
}

func NewGormSentEmailRepo(db *gorm.DB) *GormSentEmailRepo {
	return &GormSentEmailRepo{db: db}
}

func (r *GormSentEmailRepo) Create(ctx context.Context, e *domain.SentEmail) error {
	model := sentEmailModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *sentEmailModelToDomain(model)
	}
	return nil
}

func (r *GormSentEmailRepo) GetByID(ctx context.Context, id string) (*domain.SentEmail, error) {
	var model SentEmailModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sentEmailModelToDomain(&model), nil
}

func (r *GormSentEmailRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SentEmail, error) {
	var model SentEmailModel
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sentEmailModelToDomain(&model), nil
}

func (r *GormSentEmailRepo) MarkSent(ctx context.Context, id string, providerMessageID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&SentEmailModel{}).
		Where("id = ? AND status = ?", id, domain.SentEmailStatusPending).
		Updates(map[string]any{
			"status":              domain.SentEmailStatusSent,
			"provider_message_id": providerMessageID,
			"sent_at":             sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormSentEmailRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&SentEmailModel{}).
		Where("id = ? AND status = ?", id, domain.SentEmailStatusPending).
		Updates(map[string]any{
			"status":        domain.SentEmailStatusFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyTransition moves the record forward only when its current status ranks below
// the target, so concurrent or repeated webhooks cannot regress it. It reports
// whether a row changed.
func (r *GormSentEmailRepo) ApplyTransition(ctx context.Context, id string, update TransitionUpdate) (bool, error) {
	predecessors := domain.PredecessorsOf(update.Status)
	if len(predecessors) == 0 {
		return false, nil
	}

	columns := map[string]any{"status": update.Status}
	if update.ErrorMessage != nil {
		columns["error_message"] = *update.ErrorMessage
	}
	if update.DeliveredAt != nil {
		columns["delivered_at"] = gorm.Expr("COALESCE(delivered_at, ?)", *update.DeliveredAt)
	}

	result := r.db.WithContext(ctx).
		Model(&SentEmailModel{}).
		Where("id = ? AND status IN ?", id, predecessors).
		Updates(columns)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormSentEmailRepo) List(ctx context.Context, params SentEmailListParams) ([]domain.SentEmail, int64, error) {
	query := r.db.WithContext(ctx).Model(&SentEmailModel{})

	if params.UserID != "" {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.CampaignID != nil {
		query = query.Where("campaign_id = ?", *params.CampaignID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []SentEmailModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	emails := make([]domain.SentEmail, 0, len(models))
	for i := range models {
		emails = append(emails, *sentEmailModelToDomain(&models[i]))
	}

	return emails, total, nil
}

func (r *GormSentEmailRepo) CountByStatus(ctx context.Context, campaignID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&SentEmailModel{}).
		Select("status, COUNT(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
