package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/threepl_backend/middlewares"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/workflow"
	"github.com/sirupsen/logrus"
)

type productResponse struct {
	Product  *models.Product `json:"product"`
	Warnings []string        `json:"warnings"`
}

func (s *server) listProducts(c *gin.Context) {
	customerId, ok := queryInt(c, "customer_id")
	if !ok {
		return
	}
	active, ok := queryBool(c, "is_active")
	if !ok {
		return
	}
	products, err := models.ListProducts(c.Request.Context(), s.db, models.ProductFilter{
		CustomerId: customerId,
		Sku:        c.Query("sku"),
		IsActive:   active,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (s *server) getProduct(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	product, err := middlewares.GetProduct(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *server) createProduct(c *gin.Context) {
	var input models.NewProduct
	if !bindJSON(c, &input) {
		return
	}
	product, warnings, err := models.CreateProduct(c.Request.Context(), s.db, &input, s.policy)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, productResponse{Product: product, Warnings: warnings})
}

func (s *server) updateProduct(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewProduct
	if !bindJSON(c, &input) {
		return
	}
	product, warnings, err := models.UpdateProduct(c.Request.Context(), s.db, id, &input, s.policy)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, productResponse{Product: product, Warnings: warnings})
}

func (s *server) deleteProduct(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	product, err := models.DeleteProduct(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

/* Inventory */

func (s *server) getInventory(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	inventory, err := models.GetProductInventory(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory)
}

func (s *server) listInventoryTransactions(c *gin.Context) {
	productId, ok := queryInt(c, "product_id")
	if !ok {
		return
	}
	warehouseId, ok := queryInt(c, "warehouse_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	txns, err := models.ListInventoryTransactions(c.Request.Context(), s.db, models.InventoryTransactionFilter{
		ProductId:   productId,
		WarehouseId: warehouseId,
		Reference:   c.Query("reference"),
		Limit:       limit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

func postingResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInsufficientInventory),
		errors.Is(err, models.ErrLocationCapacityExceeded),
		errors.Is(err, models.ErrRecordNotFound):
		return "rejected"
	}
	return "error"
}

func (s *server) postInventoryTransaction(c *gin.Context) {
	var input models.InventoryTransactionInput
	if !bindJSON(c, &input) {
		return
	}
	input.Actor = middlewares.ActorFrom(c)

	posting, err := models.ApplyInventoryTransaction(s.db.WithContext(c.Request.Context()), input)
	result := postingResult(err)
	middlewares.InventoryPostingsTotal.WithLabelValues(string(input.Type), result).Inc()
	if err != nil {
		if result == "rejected" {
			s.log(c).WithFields(logrus.Fields{
				"product_id": input.ProductId,
				"type":       input.Type,
				"reference":  input.Reference,
			}).Warn("inventory.posting.rejected: " + err.Error())
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, posting)
}

type rebuildRequest struct {
	ProductId int  `json:"product_id"`
	Fix       bool `json:"fix"`
}

// rebuildInventory recomputes cached balances from the transaction log; without fix it only reports drift.
func (s *server) rebuildInventory(c *gin.Context) {
	var req rebuildRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	report, err := workflow.RebuildInventory(c.Request.Context(), s.db, s.logger, req.ProductId, req.Fix)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

/* Ops */

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

func (s *server) outboxReplay(c *gin.Context) {
	if role, _ := roleFrom(c); role != roleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
		return
	}
	var req outboxReplayRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.RecordId <= 0 {
		badRequest(c, "record_id is required")
		return
	}
	msg, err := models.ReplayOutboxMessage(c.Request.Context(), s.db, req.RecordId)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.log(c).WithField("record_id", msg.ID).Info("outbox.replay")
	c.JSON(http.StatusOK, msg)
}
