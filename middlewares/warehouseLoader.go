package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/threepl_backend/models"
	"gorm.io/gorm"
)

type warehouseReader struct {
	db *gorm.DB
}

func (r *warehouseReader) getWarehouses(ctx context.Context, ids []int) []*dataloader.Result[*models.Warehouse] {
	var results []models.Warehouse
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Warehouse](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(w *models.Warehouse) int { return w.ID })
}

func GetWarehouse(ctx context.Context, id int) (*models.Warehouse, error) {
	return For(ctx).warehouseLoader.Load(ctx, id)()
}
