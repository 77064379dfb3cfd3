package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/threepl_backend/models"
	"gorm.io/gorm"
)

type serviceTypeReader struct {
	db *gorm.DB
}

func (r *serviceTypeReader) getServiceTypes(ctx context.Context, ids []int) []*dataloader.Result[*models.ServiceType] {
	var results []models.ServiceType
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.ServiceType](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(st *models.ServiceType) int { return st.ID })
}

func GetServiceType(ctx context.Context, id int) (*models.ServiceType, error) {
	return For(ctx).serviceTypeLoader.Load(ctx, id)()
}
