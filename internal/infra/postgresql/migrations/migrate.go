package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"gorm.io/gorm"
)

// Migrate applies all pending schema migrations. The statements stay within
// the SQL subset shared by Postgres and SQLite.
func Migrate(db *gorm.DB) error {
	return newMigrator(db).Migrate()
}

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createDispatchesTable(),
		createDispatchAttemptsTable(),
	})
}

func createDispatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_dispatches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DispatchModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_dispatches_retry ON dispatches (next_retry_at) WHERE status = 'QUEUED'`,
				`CREATE INDEX IF NOT EXISTS idx_dispatches_tracking ON dispatches (sent_at) WHERE status = 'SENT' AND handle_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_dispatches_correlation_id ON dispatches (correlation_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchModel{})
		},
	}
}
