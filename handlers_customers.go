package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/threepl_backend/middlewares"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/models/reports"
	"github.com/shopspring/decimal"
)

func (s *server) listCustomers(c *gin.Context) {
	active, ok := queryBool(c, "is_active")
	if !ok {
		return
	}
	customers, err := models.ListCustomers(c.Request.Context(), s.db, models.CustomerFilter{
		Name:         c.Query("name"),
		Code:         c.Query("code"),
		BillingCycle: models.BillingCycle(c.Query("billing_cycle")),
		IsActive:     active,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (s *server) getCustomer(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	customer, err := middlewares.GetCustomer(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *server) createCustomer(c *gin.Context) {
	var input models.NewCustomer
	if !bindJSON(c, &input) {
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), s.db, &input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (s *server) updateCustomer(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewCustomer
	if !bindJSON(c, &input) {
		return
	}
	customer, err := models.UpdateCustomer(c.Request.Context(), s.db, id, &input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *server) deleteCustomer(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	customer, err := models.DeleteCustomer(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *server) toggleCustomer(isActive bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customer, err := models.ToggleActiveCustomer(c.Request.Context(), s.db, id, isActive)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

func (s *server) listServiceTypes(c *gin.Context) {
	types, err := models.ListServiceTypes(c.Request.Context(), s.db, models.ServiceCategory(c.Query("category")))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (s *server) getServiceType(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	st, err := middlewares.GetServiceType(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

/* Rates */

type rateRequest struct {
	ServiceTypeId int             `json:"service_type_id"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   string          `json:"effective_to"`
	Notes         string          `json:"notes"`
}

type rateChangeRequest struct {
	Rate        *decimal.Decimal `json:"rate"`
	EffectiveTo string           `json:"effective_to"`
	ClearEnd    bool             `json:"clear_effective_to"`
	Notes       *string          `json:"notes"`
}

func (s *server) listRates(c *gin.Context) {
	customerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	serviceTypeId, ok := queryInt(c, "service_type_id")
	if !ok {
		return
	}
	rates, err := models.ListServiceRates(c.Request.Context(), s.db, customerId, serviceTypeId)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

// resolveRate answers which price applies to a service for the customer on a date (default today).
func (s *server) resolveRate(c *gin.Context) {
	customerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	serviceTypeId, ok := queryInt(c, "service_type_id")
	if !ok {
		return
	}
	if serviceTypeId == 0 {
		badRequest(c, "service_type_id is required")
		return
	}
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}
	asOf := today()
	if date != nil {
		asOf = *date
	}
	quote, err := models.ResolveRate(s.db.WithContext(c.Request.Context()), customerId, serviceTypeId, asOf)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *server) createRate(c *gin.Context) {
	customerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req rateRequest
	if !bindJSON(c, &req) {
		return
	}
	input := models.NewServiceRate{
		CustomerId:    customerId,
		ServiceTypeId: req.ServiceTypeId,
		Rate:          req.Rate,
		Notes:         strings.TrimSpace(req.Notes),
	}
	from, err := parseDateField("effective_from", req.EffectiveFrom)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if from != nil {
		input.EffectiveFrom = *from
	}
	if input.EffectiveTo, err = parseDateField("effective_to", req.EffectiveTo); err != nil {
		s.respondError(c, err)
		return
	}
	rate, err := models.CreateServiceRate(c.Request.Context(), s.db, &input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rate)
}

func (s *server) updateRate(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req rateChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	change := models.ServiceRateChange{Rate: req.Rate, ClearEnd: req.ClearEnd, Notes: req.Notes}
	var err error
	if change.EffectiveTo, err = parseDateField("effective_to", req.EffectiveTo); err != nil {
		s.respondError(c, err)
		return
	}
	rate, err := models.UpdateServiceRate(c.Request.Context(), s.db, id, &change)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *server) deactivateRate(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	rate, err := models.DeactivateServiceRate(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

/* Warehouses */

func (s *server) listWarehouses(c *gin.Context) {
	warehouses, err := models.ListWarehouses(c.Request.Context(), s.db)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, warehouses)
}

func (s *server) warehouseOccupancy(c *gin.Context) {
	report, err := reports.GetWarehouseOccupancyReport(c.Request.Context(), s.db)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) createWarehouse(c *gin.Context) {
	var input models.NewWarehouse
	if !bindJSON(c, &input) {
		return
	}
	warehouse, err := models.CreateWarehouse(c.Request.Context(), s.db, &input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, warehouse)
}
