package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GenerateInvoiceInput struct {
	CustomerId  int       `json:"customer_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	// IssueDate defaults to today.
	IssueDate time.Time `json:"issue_date"`
	// ServiceRecordIds restricts the invoice to these records. Empty means every
	// un-invoiced record of the customer inside the period.
	ServiceRecordIds []int  `json:"service_record_ids"`
	Notes            string `json:"notes"`
	Actor            string `json:"-"`
}

type invoiceGeneratedEvent struct {
	InvoiceId     int             `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerId    int             `json:"customer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	LineCount     int             `json:"line_count"`
	RecordCount   int             `json:"record_count"`
}

func (input *GenerateInvoiceInput) normalize() error {
	input.PeriodStart = utils.DateOnly(input.PeriodStart)
	input.PeriodEnd = utils.DateOnly(input.PeriodEnd)
	if input.IssueDate.IsZero() {
		input.IssueDate = time.Now().UTC()
	}
	input.IssueDate = utils.DateOnly(input.IssueDate)
	input.ServiceRecordIds = utils.UniqueSlice(input.ServiceRecordIds)

	ve := &models.ValidationError{}
	if input.CustomerId <= 0 {
		ve.Add("customer_id", "is required")
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() {
		ve.Add("period", "start and end are required")
	} else if input.PeriodEnd.Before(input.PeriodStart) {
		ve.Add("period_end", "must not be before period_start")
	}
	if strings.TrimSpace(input.Actor) == "" {
		ve.Add("actor", "is required")
	}
	return ve.OrNil()
}

// GenerateInvoice bills a customer's un-invoiced service records for one period. Everything
// happens in one transaction: the customer row and the selected records are locked, lines
// are priced, the invoice number is allocated and the records are attached to the invoice.
func GenerateInvoice(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input GenerateInvoiceInput) (*models.Invoice, error) {
	ctx, span := tracer.Start(ctx, "workflow.GenerateInvoice")
	defer span.End()

	if err := input.normalize(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("customer_id", input.CustomerId),
		attribute.String("period", input.PeriodStart.Format("2006-01-02")+".."+input.PeriodEnd.Format("2006-01-02")),
	)

	tx := db.WithContext(ctx).Begin()
	invoice, recordCount, err := generateInvoiceTx(tx, input)
	if err != nil {
		tx.Rollback()
		failSpan(span, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "invoiceWorkflow.go", "GenerateInvoice", "Commit", input.CustomerId, err)
		failSpan(span, err)
		return nil, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"customer_id":    input.CustomerId,
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
			"lines":          len(invoice.Lines),
			"records":        recordCount,
			"total":          invoice.TotalAmount.StringFixed(2),
			"actor":          input.Actor,
		}).Info("invoice.generate.done")
	}
	return invoice, nil
}

func generateInvoiceTx(tx *gorm.DB, input GenerateInvoiceInput) (*models.Invoice, int, error) {
	customer, err := utils.FetchModelForUpdate[models.Customer](tx, input.CustomerId)
	if err != nil {
		return nil, 0, err
	}

	records, err := lockBillableRecords(tx, input)
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("%w: customer %s, %s..%s", models.ErrNothingToInvoice,
			customer.Code, input.PeriodStart.Format("2006-01-02"), input.PeriodEnd.Format("2006-01-02"))
	}

	lines, total, err := models.BuildInvoiceLines(records, models.NewRateFunc(tx, customer.ID))
	if err != nil {
		return nil, 0, err
	}
	if err := describeLines(tx, lines); err != nil {
		return nil, 0, err
	}

	number, err := models.NextNumber(tx, models.InvoiceNumberSeries)
	if err != nil {
		return nil, 0, err
	}

	invoice := models.Invoice{
		InvoiceNumber: number,
		CustomerId:    customer.ID,
		PeriodStart:   input.PeriodStart,
		PeriodEnd:     input.PeriodEnd,
		IssueDate:     input.IssueDate,
		DueDate:       models.DueDateFor(input.IssueDate, customer.PaymentTermsDays),
		Status:        models.InvoiceStatusDraft,
		TotalAmount:   total,
		Notes:         input.Notes,
		Lines:         lines,
		CreatedBy:     input.Actor,
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, 0, err
	}

	ids := make([]int, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	now := time.Now().UTC()
	result := tx.Model(&models.ServiceRecord{}).
		Where("id IN ? AND invoice_id IS NULL", ids).
		Updates(map[string]interface{}{"invoice_id": invoice.ID, "invoiced_at": now})
	if result.Error != nil {
		return nil, 0, result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		return nil, 0, fmt.Errorf("%w: %d of %d records were invoiced concurrently",
			models.ErrServiceRecordInvoiced, int64(len(ids))-result.RowsAffected, len(ids))
	}

	event := invoiceGeneratedEvent{
		InvoiceId:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		CustomerId:    customer.ID,
		TotalAmount:   invoice.TotalAmount,
		LineCount:     len(invoice.Lines),
		RecordCount:   len(records),
	}
	if err := models.PublishEvent(tx, models.EventInvoiceGenerated, models.OutboxReferenceInvoice, invoice.ID, event); err != nil {
		return nil, 0, err
	}
	return &invoice, len(records), nil
}

// lockBillableRecords selects the records to bill under FOR UPDATE, ordered by id.
func lockBillableRecords(tx *gorm.DB, input GenerateInvoiceInput) ([]*models.ServiceRecord, error) {
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Order("id")
	if len(input.ServiceRecordIds) == 0 {
		var records []*models.ServiceRecord
		err := q.Where("customer_id = ? AND invoice_id IS NULL AND performed_on BETWEEN ? AND ?",
			input.CustomerId, input.PeriodStart, input.PeriodEnd).
			Find(&records).Error
		return records, err
	}

	var records []*models.ServiceRecord
	if err := q.Where("id IN ?", input.ServiceRecordIds).Find(&records).Error; err != nil {
		return nil, err
	}
	ve := &models.ValidationError{}
	found := make(map[int]bool, len(records))
	for _, r := range records {
		found[r.ID] = true
		switch {
		case r.CustomerId != input.CustomerId:
			ve.Add("service_record_ids", "record %d belongs to another customer", r.ID)
		case r.PerformedOn.Before(input.PeriodStart) || r.PerformedOn.After(input.PeriodEnd):
			ve.Add("service_record_ids", "record %d is outside the billing period", r.ID)
		}
	}
	for _, id := range input.ServiceRecordIds {
		if !found[id] {
			ve.Add("service_record_ids", "record %d not found", id)
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.IsInvoiced() {
			return nil, fmt.Errorf("%w: record %d is on invoice %d", models.ErrServiceRecordInvoiced, r.ID, *r.InvoiceId)
		}
	}
	return records, nil
}

func describeLines(tx *gorm.DB, lines []models.InvoiceLine) error {
	for i := range lines {
		st, err := models.GetServiceType(tx, lines[i].ServiceTypeId)
		if err != nil {
			return err
		}
		lines[i].Description = st.Name
	}
	return nil
}
