package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryEventsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_delivery_events",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryEventModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_events_sent_email_id ON delivery_events (sent_email_id) WHERE sent_email_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_events_provider_message_id ON delivery_events (provider_message_id)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryEventModel{})
		},
	}
}
