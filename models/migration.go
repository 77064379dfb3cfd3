package models

import (
	"gorm.io/gorm"
)

// AllModels lists every persisted type in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Customer{}, &ServiceType{}, &ServiceRate{}, &ServiceRecord{},
		&Invoice{}, &InvoiceLine{}, &TransactionNumberSeries{},
		&Warehouse{}, &Product{}, &InventoryRecord{}, &InventoryBalance{}, &InventoryTransaction{},
		&OutboxMessage{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// SeedReferenceData inserts the default service catalog, number series and warehouse.
// Existing rows are left untouched, so it is safe to run on every start.
func SeedReferenceData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := SeedServiceTypes(tx); err != nil {
			return err
		}
		if err := SeedNumberSeries(tx); err != nil {
			return err
		}
		return SeedDefaultWarehouse(tx)
	})
}
