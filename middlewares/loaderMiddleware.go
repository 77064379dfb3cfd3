package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the lookups list endpoints make per row.
type Loaders struct {
	customerLoader    *dataloader.Loader[int, *models.Customer]
	serviceTypeLoader *dataloader.Loader[int, *models.ServiceType]
	productLoader     *dataloader.Loader[int, *models.Product]
	warehouseLoader   *dataloader.Loader[int, *models.Warehouse]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	customerReader := &customerReader{db: conn}
	serviceTypeReader := &serviceTypeReader{db: conn}
	productReader := &productReader{db: conn}
	warehouseReader := &warehouseReader{db: conn}

	return &Loaders{
		customerLoader:    dataloader.NewBatchedLoader(customerReader.getCustomers, dataloader.WithWait[int, *models.Customer](time.Millisecond)),
		serviceTypeLoader: dataloader.NewBatchedLoader(serviceTypeReader.getServiceTypes, dataloader.WithWait[int, *models.ServiceType](time.Millisecond)),
		productLoader:     dataloader.NewBatchedLoader(productReader.getProducts, dataloader.WithWait[int, *models.Product](time.Millisecond)),
		warehouseLoader:   dataloader.NewBatchedLoader(warehouseReader.getWarehouses, dataloader.WithWait[int, *models.Warehouse](time.Millisecond)),
	}
}

func LoaderMiddleware(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), loadersKey, NewLoaders(conn))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders.
func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults orders rows to match ids; ids with no row resolve to ErrorRecordNotFound.
func generateLoaderResults[T any](results []T, ids []int, idOf func(*T) int) []*dataloader.Result[*T] {
	resultMap := make(map[int]*T, len(results))
	for i := range results {
		resultMap[idOf(&results[i])] = &results[i]
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		if data, ok := resultMap[id]; ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: data})
			continue
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Error: utils.ErrorRecordNotFound})
	}
	return loaderResults
}
