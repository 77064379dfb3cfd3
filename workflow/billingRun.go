package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type BillingRunResult struct {
	Period     map[int]models.BillingPeriod `json:"periods"`
	Invoices   []*models.Invoice            `json:"invoices"`
	Skipped    []int                        `json:"skipped_customer_ids"`
	FailedByID map[int]string               `json:"failed"`
}

// RunBillingCycle invoices every active customer for the last complete period of its billing
// cycle as of asOf. Customers with nothing to bill are skipped. One customer failing does not
// stop the run; the joined error lists every failure.
func RunBillingCycle(ctx context.Context, db *gorm.DB, logger *logrus.Logger, asOf time.Time, actor string) (*BillingRunResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.RunBillingCycle")
	defer span.End()
	span.SetAttributes(attribute.String("as_of", asOf.Format("2006-01-02")))

	customers, err := models.ListCustomers(ctx, db, models.CustomerFilter{IsActive: utils.NewTrue()})
	if err != nil {
		return nil, err
	}

	result := &BillingRunResult{
		Period:     make(map[int]models.BillingPeriod),
		FailedByID: make(map[int]string),
	}
	var errs []error
	for _, customer := range customers {
		period, err := models.PreviousBillingPeriod(customer.BillingCycle, asOf)
		if err != nil {
			errs = append(errs, fmt.Errorf("customer %s: %w", customer.Code, err))
			result.FailedByID[customer.ID] = err.Error()
			continue
		}
		result.Period[customer.ID] = period

		invoice, err := billCustomer(ctx, db, logger, customer, period, asOf, actor)
		switch {
		case errors.Is(err, models.ErrNothingToInvoice):
			result.Skipped = append(result.Skipped, customer.ID)
		case err != nil:
			config.LogError(logger, "billingRun.go", "RunBillingCycle", "GenerateInvoice", customer.Code, err)
			errs = append(errs, fmt.Errorf("customer %s: %w", customer.Code, err))
			result.FailedByID[customer.ID] = err.Error()
		default:
			result.Invoices = append(result.Invoices, invoice)
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"as_of":    asOf.Format("2006-01-02"),
			"invoices": len(result.Invoices),
			"skipped":  len(result.Skipped),
			"failed":   len(result.FailedByID),
		}).Info("billing.run.done")
	}
	joined := errors.Join(errs...)
	failSpan(span, joined)
	return result, joined
}

func billCustomer(ctx context.Context, db *gorm.DB, logger *logrus.Logger, customer *models.Customer, period models.BillingPeriod, asOf time.Time, actor string) (*models.Invoice, error) {
	release, err := utils.ObtainLock(ctx, "billing", customer.Code, 2*time.Minute, "billingRun.go", "billCustomer")
	if err != nil {
		return nil, err
	}
	defer release()

	return GenerateInvoice(ctx, db, logger, GenerateInvoiceInput{
		CustomerId:  customer.ID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		IssueDate:   asOf,
		Actor:       actor,
	})
}
