package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceType is seeded reference data and never edited through the API.
type ServiceType struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	Code            string              `gorm:"size:40;not null;uniqueIndex" json:"code"`
	Name            string              `gorm:"size:100;not null" json:"name"`
	BillingUnit     BillingUnit         `gorm:"size:20;not null" json:"billing_unit"`
	Category        ServiceCategory     `gorm:"size:20;not null;index" json:"category"`
	BaseRate        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"base_rate"`
	IsCustomPricing bool                `gorm:"not null;default:false" json:"is_custom_pricing"`
	Description     string              `gorm:"type:text" json:"description"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func baseRate(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

// DefaultServiceTypes is the catalog seeded on a fresh database.
var DefaultServiceTypes = []ServiceType{
	{Code: "RCV_PALLET", Name: "Receiving - palletized", BillingUnit: BillingUnitPerPallet, Category: ServiceCategoryInbound, BaseRate: baseRate("12.50")},
	{Code: "RCV_CASE", Name: "Receiving - floor loaded cases", BillingUnit: BillingUnitPerCase, Category: ServiceCategoryInbound, BaseRate: baseRate("0.85")},
	{Code: "CONTAINER_UNLOAD", Name: "Container unload", BillingUnit: BillingUnitPerTruck, Category: ServiceCategoryInbound, IsCustomPricing: true},
	{Code: "STORAGE_PALLET", Name: "Pallet storage", BillingUnit: BillingUnitPerPallet, Category: ServiceCategoryStorage, BaseRate: baseRate("18.00")},
	{Code: "STORAGE_COLD_PALLET", Name: "Temperature controlled pallet storage", BillingUnit: BillingUnitPerPallet, Category: ServiceCategoryStorage, BaseRate: baseRate("32.00")},
	{Code: "PICK_UNIT", Name: "Pick and pack - each", BillingUnit: BillingUnitPerUnit, Category: ServiceCategoryFulfillment, BaseRate: baseRate("0.45")},
	{Code: "PICK_CASE", Name: "Pick and pack - case", BillingUnit: BillingUnitPerCase, Category: ServiceCategoryFulfillment, BaseRate: baseRate("1.10")},
	{Code: "ORDER_SHIPMENT", Name: "Order processing", BillingUnit: BillingUnitPerShipment, Category: ServiceCategoryFulfillment, BaseRate: baseRate("2.75")},
	{Code: "LABOR_HOUR", Name: "Warehouse labor", BillingUnit: BillingUnitPerHour, Category: ServiceCategoryLabor, BaseRate: baseRate("38.00")},
	{Code: "KITTING_UNIT", Name: "Kitting and labeling", BillingUnit: BillingUnitPerUnit, Category: ServiceCategoryValueAdded, BaseRate: baseRate("0.60")},
	{Code: "SPECIAL_PROJECT", Name: "Special project", BillingUnit: BillingUnitPerProject, Category: ServiceCategoryProject, IsCustomPricing: true},
}

// SeedServiceTypes inserts any default service type whose code is missing. Existing rows are left untouched.
func SeedServiceTypes(tx *gorm.DB) error {
	for _, st := range DefaultServiceTypes {
		row := st
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed service type %s: %w", st.Code, err)
		}
	}
	return nil
}

func serviceTypeCacheKey(id int) string {
	return fmt.Sprintf("ServiceType:%d", id)
}

// GetServiceType reads through the Redis cache; service types never change once seeded.
func GetServiceType(tx *gorm.DB, id int) (*ServiceType, error) {
	var cached ServiceType
	if ok, err := config.GetRedisObject(serviceTypeCacheKey(id), &cached); err == nil && ok {
		return &cached, nil
	}
	st, err := utils.FetchModel[ServiceType](tx, id)
	if err != nil {
		return nil, err
	}
	if hours := config.ServiceTypeCacheHours(); hours > 0 {
		if err := config.SetRedisObject(serviceTypeCacheKey(id), st, time.Duration(hours)*time.Hour); err != nil {
			config.LogError(config.GetLogger(), "ServiceType", "GetServiceType", "cache store", id, err)
		}
	}
	return st, nil
}

// GetServiceTypes returns service types keyed by id.
func GetServiceTypes(ctx context.Context, db *gorm.DB, ids []int) (map[int]*ServiceType, error) {
	var results []*ServiceType
	if err := db.WithContext(ctx).Where("id IN ?", utils.UniqueSlice(ids)).Find(&results).Error; err != nil {
		return nil, err
	}
	m := make(map[int]*ServiceType, len(results))
	for _, st := range results {
		m[st.ID] = st
	}
	return m, nil
}

func GetServiceTypeByCode(ctx context.Context, db *gorm.DB, code string) (*ServiceType, error) {
	var st ServiceType
	if err := db.WithContext(ctx).Where("code = ?", code).First(&st).Error; err != nil {
		if isNotFound(err) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &st, nil
}

func ListServiceTypes(ctx context.Context, db *gorm.DB, category ServiceCategory) ([]*ServiceType, error) {
	var results []*ServiceType
	q := db.WithContext(ctx).Order("category, name")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
