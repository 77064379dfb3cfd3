package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// first match wins; ErrValidation sits first so wrapped validation failures keep their field list
var errorMappings = []errorMapping{
	{models.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{models.ErrRecordNotFound, http.StatusNotFound, "not_found"},
	{models.ErrDuplicate, http.StatusConflict, "duplicate"},
	{models.ErrOverlappingRates, http.StatusConflict, "overlapping_rates"},
	{models.ErrInsufficientInventory, http.StatusConflict, "insufficient_inventory"},
	{models.ErrLocationCapacityExceeded, http.StatusConflict, "location_capacity_exceeded"},
	{models.ErrServiceRecordInvoiced, http.StatusConflict, "service_record_invoiced"},
	{models.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{models.ErrCustomerHasInvoices, http.StatusConflict, "customer_has_invoices"},
	{models.ErrImmutableTransaction, http.StatusConflict, "immutable_transaction"},
	{models.ErrNoApplicableRate, http.StatusUnprocessableEntity, "no_applicable_rate"},
	{models.ErrNothingToInvoice, http.StatusUnprocessableEntity, "nothing_to_invoice"},
	{models.ErrCustomerInactive, http.StatusUnprocessableEntity, "customer_inactive"},
	{models.ErrEmptyImport, http.StatusUnprocessableEntity, "empty_import"},
	{utils.ErrLockNotObtained, http.StatusConflict, "locked"},
}

func classifyError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// respondError writes the error body. Domain errors are returned as-is; anything unmapped is
// logged and hidden behind a generic message.
func (s *server) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	body := gin.H{"error": err.Error(), "code": code}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.AsMap()
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		body["error"] = "internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}

func (s *server) log(c *gin.Context) *logrus.Entry {
	entry := s.logger.WithField("path", c.FullPath())
	if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
		entry = entry.WithField("correlation_id", cid)
	}
	if actor, ok := utils.GetActorFromContext(c.Request.Context()); ok {
		entry = entry.WithField("actor", actor)
	}
	return entry
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt returns 0 for a missing parameter.
func queryInt(c *gin.Context, name string) (int, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return n, true
}

func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, true
	}
	t, err := utils.ParseDate(v)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &t, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, true
	}
	b, err := utils.ParseBool(v)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &b, true
}

// parseDateField parses an optional body date; the error names the field for the response.
func parseDateField(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := utils.ParseDate(value)
	if err != nil {
		return nil, models.NewValidationError(field, "%s", err.Error())
	}
	return &t, nil
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

const roleAdmin = "admin"

func roleFrom(c *gin.Context) (string, bool) {
	return utils.GetRoleFromContext(c.Request.Context())
}
