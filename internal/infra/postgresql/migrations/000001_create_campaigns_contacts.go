package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"gorm.io/gorm"
)

func createCampaignsAndContactsTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_campaigns_contacts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignModel{}, &repository.ContactModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_campaigns_user_status ON campaigns (user_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_campaigns_scheduled_due ON campaigns (scheduled_at) WHERE status = 'scheduled' AND scheduled_at IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_user_email ON contacts (user_id, lower(email))`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ContactModel{}, &repository.CampaignModel{})
		},
	}
}
