package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/toolhub/digest-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createItemsTable(),
		createRecipientSourceTables(),
		createNotificationWindowsTable(),
	})

	return m.Migrate()
}

func createItemsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_items",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ItemModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_items_status_approved_at ON items (status, approved_at) WHERE approved_at IS NOT NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ItemModel{})
		},
	}
}

func createRecipientSourceTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_recipient_sources",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SubscriberModel{}, &repository.AccountModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscribers_email ON subscribers (lower(email))`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscribers_token ON subscribers (unsubscribe_token)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (lower(email))`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SubscriberModel{}, &repository.AccountModel{})
		},
	}
}

func createNotificationWindowsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_notification_windows",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WindowModel{}); err != nil {
				return err
			}
			indexes := []string{
				// One ledger row per kind per calendar day; this is what
				// makes the window claim an atomic insert-if-absent.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_windows_kind_day ON notification_windows (kind, ((window_start AT TIME ZONE 'UTC')::date))`,
				// Hot path for the idempotency guard lookup.
				`CREATE INDEX IF NOT EXISTS idx_windows_kind_start ON notification_windows (kind, window_start DESC)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WindowModel{})
		},
	}
}
