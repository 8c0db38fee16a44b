package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cardledger/internal/model"
)

// Open returns a connected GORM DB instance for the mysql or postgres driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Card{}, &model.Transfer{}, &model.BlockRequest{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// At most one pending block request per card. MySQL lacks partial
	// indexes, so there the row lock on the card is the only guard.
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_block_requests_pending_card
ON block_requests (card_id) WHERE status = 'PENDING'`).Error; err != nil {
			return fmt.Errorf("create pending block request index: %w", err)
		}
	}
	return nil
}
