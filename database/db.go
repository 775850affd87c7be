package database

import (
	"fmt"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the PostgreSQL pool. Driver errors are translated so unique
// violations surface as gorm.ErrDuplicatedKey.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or updates every marketplace table and its unique indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Listing{},
		&models.Dataset{},
		&models.DatasetContribution{},
		&models.Purchase{},
		&models.LedgerEntry{},
		&models.DatasetSale{},
		&models.AllocationBatch{},
		&models.RevenueShare{},
		&models.UserBalance{},
	)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
