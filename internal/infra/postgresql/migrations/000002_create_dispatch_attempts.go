package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"gorm.io/gorm"
)

func createDispatchAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_dispatch_attempts",
		Migrate: func(tx *gorm.DB) error {
			// The model's unique (dispatch_id, attempt_number) index makes
			// re-recording an attempt a no-op.
			return tx.AutoMigrate(&repository.DispatchAttemptModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchAttemptModel{})
		},
	}
}
