package persistence

import (
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/command"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

// AutoMigrate creates the schema for all core and workflow models. Production
// deployments run the SQL migrations in migrations/ instead; this backs
// development and the sqlite test harness.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&command.IdempotencyRecord{},
		&ledger.Entry{},
		&audit.Event{},
		&audit.AnchorRecord{},
		&invest.Application{},
		&invest.Offering{},
		&invest.Subscription{},
		&invest.Milestone{},
		&invest.Tranche{},
	)
}
