package database

import (
	"fmt"

	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/utils"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.MenuItem{},
		&models.ExtraIngredient{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderItemExtra{},
		&models.Payment{},
		&models.PaymentConflict{},
	)
	if err != nil {
		return fmt.Errorf("failed to AutoMigrate: %w", err)
	}
	if utils.InfoLogger != nil {
		utils.InfoLogger.Println("AutoMigrate completed.")
	}
	return nil
}
