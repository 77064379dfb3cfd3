package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/threepl_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRecord is the per-product on-hand cache. OnHandUnits is canonical; cases and pallets
// are the whole-case and whole-pallet equivalents. Only the ledger writes it.
type InventoryRecord struct {
	ID             int        `gorm:"primary_key" json:"id"`
	ProductId      int        `gorm:"not null;uniqueIndex" json:"product_id"`
	OnHandUnits    int64      `gorm:"not null;default:0" json:"on_hand_units"`
	OnHandCases    int64      `gorm:"not null;default:0" json:"on_hand_cases"`
	OnHandPallets  int64      `gorm:"not null;default:0" json:"on_hand_pallets"`
	LastReceivedAt *time.Time `json:"last_received_at"`
	LastShippedAt  *time.Time `json:"last_shipped_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryBalance is the on-hand count of one product at one warehouse.
type InventoryBalance struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ProductId   int       `gorm:"not null;uniqueIndex:idx_balance_product_warehouse,priority:1" json:"product_id"`
	WarehouseId int       `gorm:"not null;uniqueIndex:idx_balance_product_warehouse,priority:2;index" json:"warehouse_id"`
	OnHandUnits int64     `gorm:"not null;default:0" json:"on_hand_units"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryTransaction is the append-only audit log and the source of truth for on-hand counts.
// Units/Cases/Pallets are the quantity as entered; QuantityUnits is the signed change in eaches
// at WarehouseId. For an adjustment the entered quantity is the new absolute count.
type InventoryTransaction struct {
	ID              int                      `gorm:"primary_key" json:"id"`
	ProductId       int                      `gorm:"not null;index:idx_inv_txn_product_posted,priority:1" json:"product_id"`
	WarehouseId     int                      `gorm:"not null;index" json:"warehouse_id"`
	TransactionType InventoryTransactionType `gorm:"size:20;not null" json:"transaction_type"`
	TransferLeg     TransferLeg              `gorm:"size:3" json:"transfer_leg,omitempty"`
	Units           int64                    `gorm:"not null;default:0" json:"units"`
	Cases           int64                    `gorm:"not null;default:0" json:"cases"`
	Pallets         int64                    `gorm:"not null;default:0" json:"pallets"`
	QuantityUnits   int64                    `gorm:"not null" json:"quantity_units"`
	BalanceAfter    int64                    `gorm:"not null" json:"balance_after"`
	Reference       string                   `gorm:"size:100;index" json:"reference"`
	Actor           string                   `gorm:"size:100;not null" json:"actor"`
	Notes           string                   `gorm:"type:text" json:"notes"`
	CorrelationId   string                   `gorm:"size:64;index" json:"correlation_id"`
	PostedAt        time.Time                `gorm:"not null;index:idx_inv_txn_product_posted,priority:2" json:"posted_at"`
	CreatedAt       time.Time                `gorm:"autoCreateTime" json:"created_at"`
}

func (t *InventoryTransaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableTransaction
}

func (t *InventoryTransaction) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableTransaction
}

// lockInventoryRecord returns the product's record under FOR UPDATE, creating it if missing.
func lockInventoryRecord(tx *gorm.DB, productId int) (*InventoryRecord, error) {
	record := InventoryRecord{ProductId: productId}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productId).
		FirstOrCreate(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

func lockInventoryBalance(tx *gorm.DB, productId int, warehouseId int) (*InventoryBalance, error) {
	balance := InventoryBalance{ProductId: productId, WarehouseId: warehouseId}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productId, warehouseId).
		FirstOrCreate(&balance)
	if result.Error != nil {
		return nil, result.Error
	}
	return &balance, nil
}

type ProductInventory struct {
	Record   *InventoryRecord    `json:"record"`
	Balances []*InventoryBalance `json:"balances"`
}

func GetProductInventory(ctx context.Context, db *gorm.DB, productId int) (*ProductInventory, error) {
	if err := utils.ValidateResourceId[Product](db.WithContext(ctx), productId); err != nil {
		return nil, err
	}
	var record InventoryRecord
	err := db.WithContext(ctx).Where("product_id = ?", productId).First(&record).Error
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if err != nil {
		record = InventoryRecord{ProductId: productId}
	}
	var balances []*InventoryBalance
	if err := db.WithContext(ctx).Where("product_id = ?", productId).Order("warehouse_id").Find(&balances).Error; err != nil {
		return nil, err
	}
	return &ProductInventory{Record: &record, Balances: balances}, nil
}

type InventoryTransactionFilter struct {
	ProductId   int
	WarehouseId int
	Reference   string
	Limit       int
}

func ListInventoryTransactions(ctx context.Context, db *gorm.DB, filter InventoryTransactionFilter) ([]*InventoryTransaction, error) {
	var results []*InventoryTransaction
	q := db.WithContext(ctx).Order("posted_at DESC, id DESC")
	if filter.ProductId > 0 {
		q = q.Where("product_id = ?", filter.ProductId)
	}
	if filter.WarehouseId > 0 {
		q = q.Where("warehouse_id = ?", filter.WarehouseId)
	}
	if filter.Reference != "" {
		q = q.Where("reference = ?", filter.Reference)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
