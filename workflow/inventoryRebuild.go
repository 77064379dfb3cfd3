package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryDrift is a stored on-hand count that disagrees with the transaction log.
// WarehouseId 0 refers to the product-level inventory record.
type InventoryDrift struct {
	ProductId   int   `json:"product_id"`
	WarehouseId int   `json:"warehouse_id"`
	Stored      int64 `json:"stored"`
	Expected    int64 `json:"expected"`
}

type InventoryRebuildReport struct {
	ProductsChecked int              `json:"products_checked"`
	Drifts          []InventoryDrift `json:"drifts"`
	Fixed           bool             `json:"fixed"`
}

type warehouseSum struct {
	WarehouseId int
	Total       int64
}

// RebuildInventory recomputes balances and records from the transaction log for one product,
// or for every product when productId is 0. With fix set, drifting rows are overwritten;
// otherwise only the report is produced.
func RebuildInventory(ctx context.Context, db *gorm.DB, logger *logrus.Logger, productId int, fix bool) (*InventoryRebuildReport, error) {
	ctx, span := tracer.Start(ctx, "workflow.RebuildInventory")
	defer span.End()
	span.SetAttributes(attribute.Int("product_id", productId), attribute.Bool("fix", fix))

	var productIds []int
	q := db.WithContext(ctx).Model(&models.Product{}).Order("id")
	if productId > 0 {
		if err := utils.ValidateResourceId[models.Product](db.WithContext(ctx), productId); err != nil {
			return nil, err
		}
		q = q.Where("id = ?", productId)
	}
	if err := q.Pluck("id", &productIds).Error; err != nil {
		return nil, err
	}

	report := &InventoryRebuildReport{Fixed: fix}
	for _, id := range productIds {
		var drifts []InventoryDrift
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			drifts, err = rebuildProductTx(tx, id, fix)
			return err
		})
		if err != nil {
			err = fmt.Errorf("rebuild product %d: %w", id, err)
			failSpan(span, err)
			return nil, err
		}
		report.ProductsChecked++
		for _, d := range drifts {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"product_id":   d.ProductId,
					"warehouse_id": d.WarehouseId,
					"stored":       d.Stored,
					"expected":     d.Expected,
					"fixed":        fix,
				}).Warn("inv.rebuild.drift")
			}
		}
		report.Drifts = append(report.Drifts, drifts...)
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"products": report.ProductsChecked,
			"drifts":   len(report.Drifts),
			"fixed":    fix,
		}).Info("inv.rebuild.done")
	}
	return report, nil
}

func rebuildProductTx(tx *gorm.DB, productId int, fix bool) ([]InventoryDrift, error) {
	product, err := utils.FetchModel[models.Product](tx, productId)
	if err != nil {
		return nil, err
	}

	// same lock the ledger takes, so no posting interleaves with the recount
	var record models.InventoryRecord
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productId).
		Attrs(models.InventoryRecord{ProductId: productId}).
		FirstOrCreate(&record).Error
	if err != nil {
		return nil, err
	}

	var sums []warehouseSum
	err = tx.Model(&models.InventoryTransaction{}).
		Select("warehouse_id, SUM(quantity_units) AS total").
		Where("product_id = ?", productId).
		Group("warehouse_id").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	expected := make(map[int]int64, len(sums))
	var expectedTotal int64
	for _, s := range sums {
		expected[s.WarehouseId] = s.Total
		expectedTotal += s.Total
	}

	var balances []*models.InventoryBalance
	if err := tx.Where("product_id = ?", productId).Order("warehouse_id").Find(&balances).Error; err != nil {
		return nil, err
	}

	var drifts []InventoryDrift
	seen := make(map[int]bool, len(balances))
	for _, b := range balances {
		seen[b.WarehouseId] = true
		want := expected[b.WarehouseId]
		if b.OnHandUnits == want {
			continue
		}
		drifts = append(drifts, InventoryDrift{ProductId: productId, WarehouseId: b.WarehouseId, Stored: b.OnHandUnits, Expected: want})
		if fix {
			if err := tx.Model(b).Update("on_hand_units", want).Error; err != nil {
				return nil, err
			}
		}
	}
	for warehouseId, want := range expected {
		if seen[warehouseId] || want == 0 {
			continue
		}
		drifts = append(drifts, InventoryDrift{ProductId: productId, WarehouseId: warehouseId, Stored: 0, Expected: want})
		if fix {
			b := models.InventoryBalance{ProductId: productId, WarehouseId: warehouseId, OnHandUnits: want}
			if err := tx.Create(&b).Error; err != nil {
				return nil, err
			}
		}
	}

	if record.OnHandUnits != expectedTotal {
		drifts = append(drifts, InventoryDrift{ProductId: productId, Stored: record.OnHandUnits, Expected: expectedTotal})
	}
	cases, pallets := product.FullCasesAndPallets(expectedTotal)
	if fix && (record.OnHandUnits != expectedTotal || record.OnHandCases != cases || record.OnHandPallets != pallets) {
		err := tx.Model(&record).Updates(map[string]interface{}{
			"on_hand_units":   expectedTotal,
			"on_hand_cases":   cases,
			"on_hand_pallets": pallets,
		}).Error
		if err != nil {
			return nil, err
		}
	}
	return drifts, nil
}
