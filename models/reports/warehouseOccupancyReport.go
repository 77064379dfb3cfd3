package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CustomerOccupancy struct {
	CustomerId      int   `json:"customer_id"`
	Products        int   `json:"products"`
	OnHandUnits     int64 `json:"on_hand_units"`
	PalletPositions int64 `json:"pallet_positions"`
}

// WarehouseOccupancy is what a warehouse holds right now, in pallet positions per customer.
type WarehouseOccupancy struct {
	WarehouseId     int                  `json:"warehouse_id"`
	Code            string               `json:"code"`
	Name            string               `json:"name"`
	PalletCapacity  *int64               `json:"pallet_capacity"`
	PalletPositions int64                `json:"pallet_positions"`
	Customers       []*CustomerOccupancy `json:"customers"`
}

type occupancyRow struct {
	WarehouseId    int
	CustomerId     int
	OnHandUnits    int64
	UnitsPerCase   int
	CasesPerPallet int
}

// GetWarehouseOccupancyReport counts pallet positions the same way the ledger's capacity check does.
// Cached in Redis when ENABLE_REPORT_CACHE is set.
func GetWarehouseOccupancyReport(ctx context.Context, db *gorm.DB) ([]*WarehouseOccupancy, error) {
	start := time.Now()
	defer logSlowReport(ctx, "warehouse_occupancy_report", start, logrus.Fields{})

	if reportCacheEnabled() {
		key := fmt.Sprintf("report:warehouse_occupancy:%s", time.Now().UTC().Format("2006-01-02T15"))
		var cached []*WarehouseOccupancy
		if ok, err := cacheGet(key, &cached); err == nil && ok && cached != nil {
			return cached, nil
		}
		rows, err := buildWarehouseOccupancy(ctx, db)
		if err != nil {
			return nil, err
		}
		_ = cacheSet(key, rows, reportCacheTTL())
		return rows, nil
	}

	return buildWarehouseOccupancy(ctx, db)
}

func buildWarehouseOccupancy(ctx context.Context, db *gorm.DB) ([]*WarehouseOccupancy, error) {
	warehouses, err := models.ListWarehouses(ctx, db)
	if err != nil {
		return nil, err
	}

	var rows []occupancyRow
	err = db.WithContext(ctx).Table("inventory_balances").
		Select("inventory_balances.warehouse_id, products.customer_id, inventory_balances.on_hand_units, products.units_per_case, products.cases_per_pallet").
		Joins("JOIN products ON products.id = inventory_balances.product_id").
		Where("inventory_balances.on_hand_units > 0").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byWarehouse := make(map[int]map[int]*CustomerOccupancy)
	for _, r := range rows {
		customers, ok := byWarehouse[r.WarehouseId]
		if !ok {
			customers = make(map[int]*CustomerOccupancy)
			byWarehouse[r.WarehouseId] = customers
		}
		co, ok := customers[r.CustomerId]
		if !ok {
			co = &CustomerOccupancy{CustomerId: r.CustomerId}
			customers[r.CustomerId] = co
		}
		p := models.Product{UnitsPerCase: r.UnitsPerCase, CasesPerPallet: r.CasesPerPallet}
		co.Products++
		co.OnHandUnits += r.OnHandUnits
		co.PalletPositions += p.PalletPositions(r.OnHandUnits)
	}

	result := make([]*WarehouseOccupancy, 0, len(warehouses))
	for _, wh := range warehouses {
		occ := &WarehouseOccupancy{
			WarehouseId:    wh.ID,
			Code:           wh.Code,
			Name:           wh.Name,
			PalletCapacity: wh.PalletCapacity,
			Customers:      []*CustomerOccupancy{},
		}
		for _, co := range byWarehouse[wh.ID] {
			occ.PalletPositions += co.PalletPositions
			occ.Customers = append(occ.Customers, co)
		}
		sort.Slice(occ.Customers, func(i, j int) bool {
			return occ.Customers[i].CustomerId < occ.Customers[j].CustomerId
		})
		result = append(result, occ)
	}
	return result, nil
}
