package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultWarehouseCode = "MAIN"

// Warehouse is a storage location. A nil PalletCapacity means the location is not capped.
type Warehouse struct {
	ID             int       `gorm:"primary_key" json:"id"`
	Code           string    `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	PalletCapacity *int64    `json:"pallet_capacity"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Code           string `json:"code" validate:"required,max=20"`
	Name           string `json:"name" validate:"required,max=100"`
	PalletCapacity *int64 `json:"pallet_capacity" validate:"omitempty,min=0"`
}

func (w *Warehouse) Active() bool {
	return utils.DereferencePtr(w.IsActive, true)
}

func SeedDefaultWarehouse(tx *gorm.DB) error {
	wh := Warehouse{Code: DefaultWarehouseCode, Name: "Main warehouse", IsActive: utils.NewTrue()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&wh).Error
}

func CreateWarehouse(ctx context.Context, db *gorm.DB, input *NewWarehouse) (*Warehouse, error) {
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	if err := validationFromStruct(utils.ValidateStruct(input)); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Warehouse](db.WithContext(ctx), "code", input.Code, 0); err != nil {
		return nil, fmt.Errorf("%w: warehouse code %s", ErrDuplicate, input.Code)
	}
	wh := Warehouse{
		Code:           input.Code,
		Name:           input.Name,
		PalletCapacity: input.PalletCapacity,
		IsActive:       utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&wh).Error; err != nil {
		return nil, mapDuplicateErr(err, "warehouse code "+wh.Code)
	}
	return &wh, nil
}

func GetWarehouse(ctx context.Context, db *gorm.DB, id int) (*Warehouse, error) {
	return utils.FetchModel[Warehouse](db.WithContext(ctx), id)
}

func GetWarehouseByCode(tx *gorm.DB, code string) (*Warehouse, error) {
	var wh Warehouse
	if err := tx.Where("code = ?", code).First(&wh).Error; err != nil {
		if isNotFound(err) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &wh, nil
}

func ListWarehouses(ctx context.Context, db *gorm.DB) ([]*Warehouse, error) {
	var results []*Warehouse
	if err := db.WithContext(ctx).Order("code").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
