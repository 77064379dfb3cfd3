package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int    `gorm:"primary_key" json:"id"`
	CustomerId  int    `gorm:"not null;uniqueIndex:idx_product_customer_sku,priority:1" json:"customer_id"`
	Sku         string `gorm:"size:64;not null;uniqueIndex:idx_product_customer_sku,priority:2" json:"sku"`
	Description string `gorm:"size:255" json:"description"`

	// unit tier
	UnitWeight decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_weight"`
	UnitLength decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_length"`
	UnitWidth  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_width"`
	UnitHeight decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_height"`
	UnitVolume decimal.Decimal `gorm:"type:decimal(38,12);default:0" json:"unit_volume"`

	// case tier
	UnitsPerCase int             `gorm:"not null;default:1" json:"units_per_case"`
	CaseWeight   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"case_weight"`
	CaseLength   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"case_length"`
	CaseWidth    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"case_width"`
	CaseHeight   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"case_height"`
	CaseVolume   decimal.Decimal `gorm:"type:decimal(38,12);default:0" json:"case_volume"`

	// master carton tier, all present or all null
	HasMasterCarton      bool                `gorm:"not null;default:false" json:"has_master_carton"`
	CasesPerMasterCarton *int                `json:"cases_per_master_carton"`
	MasterCartonWeight   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"master_carton_weight"`
	MasterCartonLength   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"master_carton_length"`
	MasterCartonWidth    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"master_carton_width"`
	MasterCartonHeight   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"master_carton_height"`
	MasterCartonVolume   decimal.NullDecimal `gorm:"type:decimal(38,12)" json:"master_carton_volume"`

	// pallet tier
	CasesPerPallet int                 `gorm:"not null;default:1" json:"cases_per_pallet"`
	PalletTi       int                 `gorm:"not null;default:0" json:"pallet_ti"`
	PalletHi       int                 `gorm:"not null;default:0" json:"pallet_hi"`
	PalletWeight   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"pallet_weight"`

	// storage requirements
	TemperatureControlled bool                `gorm:"not null;default:false" json:"temperature_controlled"`
	MinTemperature        decimal.NullDecimal `gorm:"type:decimal(8,2)" json:"min_temperature"`
	MaxTemperature        decimal.NullDecimal `gorm:"type:decimal(8,2)" json:"max_temperature"`
	IsHazmat              bool                `gorm:"not null;default:false" json:"is_hazmat"`
	IsFragile             bool                `gorm:"not null;default:false" json:"is_fragile"`
	IsStackable           *bool               `gorm:"not null;default:true" json:"is_stackable"`
	ShelfLifeDays         *int                `json:"shelf_life_days"`

	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	CustomerId  int    `json:"customer_id" validate:"required,gt=0"`
	Sku         string `json:"sku" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`

	UnitWeight decimal.Decimal `json:"unit_weight"`
	UnitLength decimal.Decimal `json:"unit_length"`
	UnitWidth  decimal.Decimal `json:"unit_width"`
	UnitHeight decimal.Decimal `json:"unit_height"`

	UnitsPerCase int             `json:"units_per_case"`
	CaseWeight   decimal.Decimal `json:"case_weight"`
	CaseLength   decimal.Decimal `json:"case_length"`
	CaseWidth    decimal.Decimal `json:"case_width"`
	CaseHeight   decimal.Decimal `json:"case_height"`

	HasMasterCarton      bool                `json:"has_master_carton"`
	CasesPerMasterCarton *int                `json:"cases_per_master_carton"`
	MasterCartonWeight   decimal.NullDecimal `json:"master_carton_weight"`
	MasterCartonLength   decimal.NullDecimal `json:"master_carton_length"`
	MasterCartonWidth    decimal.NullDecimal `json:"master_carton_width"`
	MasterCartonHeight   decimal.NullDecimal `json:"master_carton_height"`

	CasesPerPallet int                 `json:"cases_per_pallet"`
	PalletTi       int                 `json:"pallet_ti"`
	PalletHi       int                 `json:"pallet_hi"`
	PalletWeight   decimal.NullDecimal `json:"pallet_weight"`

	TemperatureControlled bool                `json:"temperature_controlled"`
	MinTemperature        decimal.NullDecimal `json:"min_temperature"`
	MaxTemperature        decimal.NullDecimal `json:"max_temperature"`
	IsHazmat              bool                `json:"is_hazmat"`
	IsFragile             bool                `json:"is_fragile"`
	IsStackable           *bool               `json:"is_stackable"`
	ShelfLifeDays         *int                `json:"shelf_life_days"`
}

// CreateProduct(newProduct) (Product, warnings, error)
// UpdateProduct(id, newProduct) (Product, warnings, error)
// DeleteProduct(id) (Product, error)  removes its inventory record and balances, keeps the transaction log
// GetProduct(id) (Product, error)
// ListProducts(customerId, sku) ([]Product, error)

// apply copies the input onto p and derives the volumes; the caller validates afterwards.
func (input *NewProduct) apply(p *Product) {
	p.CustomerId = input.CustomerId
	p.Sku = input.Sku
	p.Description = input.Description
	p.UnitWeight = input.UnitWeight
	p.UnitLength = input.UnitLength
	p.UnitWidth = input.UnitWidth
	p.UnitHeight = input.UnitHeight
	p.UnitsPerCase = input.UnitsPerCase
	p.CaseWeight = input.CaseWeight
	p.CaseLength = input.CaseLength
	p.CaseWidth = input.CaseWidth
	p.CaseHeight = input.CaseHeight
	p.HasMasterCarton = input.HasMasterCarton
	p.CasesPerMasterCarton = input.CasesPerMasterCarton
	p.MasterCartonWeight = input.MasterCartonWeight
	p.MasterCartonLength = input.MasterCartonLength
	p.MasterCartonWidth = input.MasterCartonWidth
	p.MasterCartonHeight = input.MasterCartonHeight
	p.CasesPerPallet = input.CasesPerPallet
	p.PalletTi = input.PalletTi
	p.PalletHi = input.PalletHi
	p.PalletWeight = input.PalletWeight
	p.TemperatureControlled = input.TemperatureControlled
	p.MinTemperature = input.MinTemperature
	p.MaxTemperature = input.MaxTemperature
	p.IsHazmat = input.IsHazmat
	p.IsFragile = input.IsFragile
	p.IsStackable = input.IsStackable
	if p.IsStackable == nil {
		p.IsStackable = utils.NewTrue()
	}
	p.ShelfLifeDays = input.ShelfLifeDays
	p.DeriveVolumes()
}

// NormalizeSku is the form a SKU is stored and compared in.
func NormalizeSku(sku string) string {
	return strings.TrimSpace(sku)
}

// BuildProduct maps, derives and validates input without touching the database.
func (input *NewProduct) BuildProduct(existing *Product, policy PalletPatternPolicy) (*Product, []string, error) {
	input.Sku = NormalizeSku(input.Sku)
	if err := validationFromStruct(utils.ValidateStruct(input)); err != nil {
		return nil, nil, err
	}
	p := &Product{IsActive: utils.NewTrue()}
	if existing != nil {
		copied := *existing
		p = &copied
		if input.CustomerId != existing.CustomerId {
			return nil, nil, NewValidationError("customer_id", "a product cannot move to another customer")
		}
	}
	input.apply(p)
	warnings, err := ValidatePackaging(p, policy)
	if err != nil {
		return nil, warnings, err
	}
	return p, warnings, nil
}

func (input *NewProduct) validate(tx *gorm.DB, id int) error {
	if err := utils.ValidateResourceId[Customer](tx, input.CustomerId); err != nil {
		return NewValidationError("customer_id", "customer %d not found", input.CustomerId)
	}
	if err := utils.ValidateUnique[Product](tx, "sku", input.Sku, id, "customer_id = ?", input.CustomerId); err != nil {
		return fmt.Errorf("%w: sku %s already exists for customer %d", ErrDuplicate, input.Sku, input.CustomerId)
	}
	return nil
}

func CreateProduct(ctx context.Context, db *gorm.DB, input *NewProduct, policy PalletPatternPolicy) (*Product, []string, error) {
	product, warnings, err := input.BuildProduct(nil, policy)
	if err != nil {
		return nil, warnings, err
	}

	tx := db.WithContext(ctx).Begin()
	if err := createProductTx(tx, input, product); err != nil {
		tx.Rollback()
		return nil, warnings, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, warnings, err
	}
	return product, warnings, nil
}

// createProductTx stores the product with its empty inventory record.
func createProductTx(tx *gorm.DB, input *NewProduct, product *Product) error {
	if err := input.validate(tx, 0); err != nil {
		return err
	}
	if err := tx.Create(product).Error; err != nil {
		return mapDuplicateErr(err, "sku "+product.Sku)
	}
	record := InventoryRecord{ProductId: product.ID}
	return tx.Create(&record).Error
}

func UpdateProduct(ctx context.Context, db *gorm.DB, id int, input *NewProduct, policy PalletPatternPolicy) (*Product, []string, error) {
	existing, err := GetProduct(ctx, db, id)
	if err != nil {
		return nil, nil, err
	}
	product, warnings, err := input.BuildProduct(existing, policy)
	if err != nil {
		return nil, warnings, err
	}

	tx := db.WithContext(ctx).Begin()
	if err := updateProductTx(tx, input, product); err != nil {
		tx.Rollback()
		return nil, warnings, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, warnings, err
	}
	return product, warnings, nil
}

func updateProductTx(tx *gorm.DB, input *NewProduct, product *Product) error {
	if err := input.validate(tx, product.ID); err != nil {
		return err
	}
	// Select("*") so cleared master carton fields are written back as NULL
	if err := tx.Model(product).Select("*").Omit("created_at").Updates(product).Error; err != nil {
		return mapDuplicateErr(err, "sku "+product.Sku)
	}
	return refreshRecordPackaging(tx, product)
}

// refreshRecordPackaging recomputes the record's full cases and pallets after a change of
// units_per_case or cases_per_pallet.
func refreshRecordPackaging(tx *gorm.DB, product *Product) error {
	record, err := lockInventoryRecord(tx, product.ID)
	if err != nil {
		return err
	}
	cases, pallets := product.FullCasesAndPallets(record.OnHandUnits)
	if cases == record.OnHandCases && pallets == record.OnHandPallets {
		return nil
	}
	return tx.Model(record).Updates(map[string]interface{}{
		"on_hand_cases":   cases,
		"on_hand_pallets": pallets,
	}).Error
}

func GetProduct(ctx context.Context, db *gorm.DB, id int) (*Product, error) {
	return utils.FetchModel[Product](db.WithContext(ctx), id)
}

type ProductFilter struct {
	CustomerId int
	Sku        string
	IsActive   *bool
}

func ListProducts(ctx context.Context, db *gorm.DB, filter ProductFilter) ([]*Product, error) {
	var results []*Product
	q := db.WithContext(ctx).Order("customer_id, sku")
	if filter.CustomerId > 0 {
		q = q.Where("customer_id = ?", filter.CustomerId)
	}
	if filter.Sku != "" {
		q = q.Where("sku LIKE ?", "%"+filter.Sku+"%")
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteProduct(ctx context.Context, db *gorm.DB, id int) (*Product, error) {
	tx := db.WithContext(ctx).Begin()
	product, err := utils.FetchModel[Product](tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := deleteProductsTx(tx, []int{id}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return product, nil
}

// deleteProductsTx removes products together with the inventory state they own.
func deleteProductsTx(tx *gorm.DB, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("product_id IN ?", ids).Delete(&InventoryBalance{}).Error; err != nil {
		return err
	}
	if err := tx.Where("product_id IN ?", ids).Delete(&InventoryRecord{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&Product{}).Error
}

func ToggleActiveProduct(ctx context.Context, db *gorm.DB, id int, isActive bool) (*Product, error) {
	product, err := GetProduct(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(product).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	product.IsActive = &isActive
	return product, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, utils.ErrorRecordNotFound)
}
