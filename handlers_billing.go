package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/threepl_backend/middlewares"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/models/reports"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/mmdatafocus/threepl_backend/workflow"
	"github.com/shopspring/decimal"
)

func today() time.Time {
	return utils.DateOnly(time.Now().UTC())
}

/* Service records */

type serviceRecordRequest struct {
	CustomerId    int             `json:"customer_id"`
	ServiceTypeId int             `json:"service_type_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	PerformedOn   string          `json:"performed_on"`
	Reference     string          `json:"reference"`
	Notes         string          `json:"notes"`
}

func (req serviceRecordRequest) toInput() (*models.NewServiceRecord, error) {
	input := &models.NewServiceRecord{
		CustomerId:    req.CustomerId,
		ServiceTypeId: req.ServiceTypeId,
		Quantity:      req.Quantity,
		Reference:     req.Reference,
		Notes:         req.Notes,
	}
	performedOn, err := parseDateField("performed_on", req.PerformedOn)
	if err != nil {
		return nil, err
	}
	if performedOn != nil {
		input.PerformedOn = *performedOn
	}
	return input, nil
}

func (s *server) listServiceRecords(c *gin.Context) {
	customerId, ok := queryInt(c, "customer_id")
	if !ok {
		return
	}
	serviceTypeId, ok := queryInt(c, "service_type_id")
	if !ok {
		return
	}
	invoiceId, ok := queryInt(c, "invoice_id")
	if !ok {
		return
	}
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	invoiced, ok := queryBool(c, "invoiced")
	if !ok {
		return
	}
	records, err := models.ListServiceRecords(c.Request.Context(), s.db, models.ServiceRecordFilter{
		CustomerId:    customerId,
		ServiceTypeId: serviceTypeId,
		From:          from,
		To:            to,
		Invoiced:      invoiced,
		InvoiceId:     invoiceId,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *server) createServiceRecord(c *gin.Context) {
	var req serviceRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		s.respondError(c, err)
		return
	}
	record, err := models.CreateServiceRecord(c.Request.Context(), s.db, input, middlewares.ActorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *server) updateServiceRecord(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req serviceRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		s.respondError(c, err)
		return
	}
	record, err := models.UpdateServiceRecord(c.Request.Context(), s.db, id, input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *server) deleteServiceRecord(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	record, err := models.DeleteServiceRecord(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

/* Invoices */

type generateInvoiceRequest struct {
	CustomerId       int    `json:"customer_id"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	IssueDate        string `json:"issue_date"`
	ServiceRecordIds []int  `json:"service_record_ids"`
	Notes            string `json:"notes"`
}

type invoiceStatusRequest struct {
	Status models.InvoiceStatus `json:"status"`
}

type billingRunRequest struct {
	AsOf string `json:"as_of"`
}

func (s *server) listInvoices(c *gin.Context) {
	customerId, ok := queryInt(c, "customer_id")
	if !ok {
		return
	}
	from, ok := queryDate(c, "issued_from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "issued_to")
	if !ok {
		return
	}
	invoices, err := models.ListInvoices(c.Request.Context(), s.db, models.InvoiceFilter{
		CustomerId: customerId,
		Status:     models.InvoiceStatus(c.Query("status")),
		IssuedFrom: from,
		IssuedTo:   to,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (s *server) getInvoice(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	invoice, err := models.GetInvoice(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *server) exportInvoice(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	buf, filename, err := reports.ExportInvoiceXlsx(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, reports.XlsxContentType, buf.Bytes())
}

func (s *server) generateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	input := workflow.GenerateInvoiceInput{
		CustomerId:       req.CustomerId,
		ServiceRecordIds: req.ServiceRecordIds,
		Notes:            req.Notes,
		Actor:            middlewares.ActorFrom(c),
	}
	verr := &models.ValidationError{}
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Time
	}{
		{"period_start", req.PeriodStart, &input.PeriodStart},
		{"period_end", req.PeriodEnd, &input.PeriodEnd},
		{"issue_date", req.IssueDate, &input.IssueDate},
	} {
		if f.value == "" {
			continue
		}
		t, err := utils.ParseDate(f.value)
		if err != nil {
			verr.Add(f.name, "%s", err.Error())
			continue
		}
		*f.dst = t
	}
	if err := verr.OrNil(); err != nil {
		s.respondError(c, err)
		return
	}

	invoice, err := workflow.GenerateInvoice(c.Request.Context(), s.db, s.logger, input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	middlewares.InvoicesGeneratedTotal.Inc()
	c.JSON(http.StatusCreated, invoice)
}

func (s *server) updateInvoiceStatus(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req invoiceStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := models.UpdateInvoiceStatus(c.Request.Context(), s.db, id, req.Status, middlewares.ActorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *server) markOverdueInvoices(c *gin.Context) {
	var req billingRunRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	asOf, err := parseDateField("as_of", req.AsOf)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if asOf == nil {
		t := today()
		asOf = &t
	}
	invoices, err := models.MarkOverdueInvoices(c.Request.Context(), s.db, *asOf, middlewares.ActorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// runBilling invoices every active customer's last complete period. Partial failures still
// return the invoices that were generated.
func (s *server) runBilling(c *gin.Context) {
	var req billingRunRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	asOf, err := parseDateField("as_of", req.AsOf)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if asOf == nil {
		t := today()
		asOf = &t
	}
	result, err := workflow.RunBillingCycle(c.Request.Context(), s.db, s.logger, *asOf, middlewares.ActorFrom(c))
	if result != nil {
		middlewares.InvoicesGeneratedTotal.Add(float64(len(result.Invoices)))
	}
	if err != nil && result == nil {
		s.respondError(c, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
		s.log(c).WithField("failed", len(result.FailedByID)).Warn("billing.run.partial")
	}
	c.JSON(status, result)
}
