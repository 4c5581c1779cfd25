package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"gorm.io/gorm"
)

func createSentEmailsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_sent_emails",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SentEmailModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_sent_emails_provider_message_id ON sent_emails (provider_message_id) WHERE provider_message_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_sent_emails_campaign_status ON sent_emails (campaign_id, status) WHERE campaign_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_sent_emails_user_created ON sent_emails (user_id, created_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SentEmailModel{})
		},
	}
}
