package repository

import (
	"context"

	"github.com/yeremiapane/cafe-orders/models"
	"gorm.io/gorm"
)

// CatalogRepository reads menu items and extras straight from the store.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) MenuItems(ctx context.Context, ids []uint) (map[uint]models.MenuItem, error) {
	out := make(map[uint]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var items []models.MenuItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (r *CatalogRepository) ExtraIngredients(ctx context.Context, ids []uint) (map[uint]models.ExtraIngredient, error) {
	out := make(map[uint]models.ExtraIngredient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var extras []models.ExtraIngredient
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&extras).Error; err != nil {
		return nil, err
	}
	for _, extra := range extras {
		out[extra.ID] = extra
	}
	return out, nil
}
