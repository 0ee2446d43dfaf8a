package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type SeedUser struct {
	Username string
	Password string
	Role     string
}

// SeedUsers creates the given accounts when they do not exist yet. Existing
// users, and their passwords, are left untouched.
func SeedUsers(db *gorm.DB, users []SeedUser) error {
	for _, u := range users {
		if u.Username == "" || u.Password == "" {
			continue
		}

		var existing models.User
		err := db.Where("username = ?", u.Username).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up user %s: %w", u.Username, err)
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := models.User{Username: u.Username, Password: string(hashed), Role: u.Role}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.Username, err)
		}

		if utils.InfoLogger != nil {
			utils.InfoLogger.WithFields(logrus.Fields{
				"username": u.Username,
				"role":     u.Role,
			}).Info("Default user created")
		}
	}
	return nil
}

// SeedCatalog fills an empty catalog with a small demo menu.
func SeedCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.MenuItem{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	menu := []models.MenuItem{
		{Name: "Masala Dosa", Description: "Rice crepe, potato masala", Price: decimal.RequireFromString("80.00"), Available: true},
		{Name: "Paneer Wrap", Description: "Grilled paneer, mint chutney", Price: decimal.RequireFromString("120.00"), Available: true},
		{Name: "Filter Coffee", Price: decimal.RequireFromString("40.00"), Available: true},
		{Name: "Mango Lassi", Price: decimal.RequireFromString("60.00"), Available: true},
	}
	extras := []models.ExtraIngredient{
		{Name: "Extra Cheese", Price: decimal.RequireFromString("20.00"), Active: true},
		{Name: "Ghee Roast", Price: decimal.RequireFromString("15.00"), Active: true},
		{Name: "Jalapenos", Price: decimal.RequireFromString("10.00"), Active: true},
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&menu).Error; err != nil {
			return err
		}
		return tx.Create(&extras).Error
	})
}
