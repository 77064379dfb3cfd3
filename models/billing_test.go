package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/testutil"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPreviousBillingPeriod(t *testing.T) {
	cases := []struct {
		cycle      models.BillingCycle
		asOf       string
		start, end string
	}{
		{models.BillingCycleWeekly, "2024-03-13", "2024-03-04", "2024-03-10"}, // Wednesday
		{models.BillingCycleWeekly, "2024-03-11", "2024-03-04", "2024-03-10"}, // Monday
		{models.BillingCycleWeekly, "2024-03-17", "2024-03-04", "2024-03-10"}, // Sunday
		{models.BillingCycleMonthly, "2024-03-01", "2024-02-01", "2024-02-29"},
		{models.BillingCycleMonthly, "2024-01-15", "2023-12-01", "2023-12-31"},
		{models.BillingCycleQuarterly, "2024-05-20", "2024-01-01", "2024-03-31"},
		{models.BillingCycleQuarterly, "2024-01-02", "2023-10-01", "2023-12-31"},
	}
	for _, tc := range cases {
		p, err := models.PreviousBillingPeriod(tc.cycle, date(tc.asOf))
		require.NoError(t, err)
		assert.Equal(t, tc.start+".."+tc.end, p.String(), "%s as of %s", tc.cycle, tc.asOf)
	}

	_, err := models.PreviousBillingPeriod("daily", date("2024-01-01"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestBillingPeriodContains(t *testing.T) {
	p := models.BillingPeriod{Start: date("2024-02-01"), End: date("2024-02-29")}
	assert.True(t, p.Contains(date("2024-02-01")))
	assert.True(t, p.Contains(date("2024-02-29").Add(20*time.Hour)))
	assert.False(t, p.Contains(date("2024-03-01")))
}

func TestDueDateFor(t *testing.T) {
	assert.Equal(t, date("2024-03-31"), models.DueDateFor(date("2024-03-01").Add(15*time.Hour), 30))
}

func TestNextNumber(t *testing.T) {
	db := testutil.NewTestDB(t)

	var numbers []string
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			n, err := models.NextNumber(tx, models.InvoiceNumberSeries)
			numbers = append(numbers, n)
			return err
		}))
	}
	assert.Equal(t, []string{"INV-000001", "INV-000002", "INV-000003"}, numbers)

	// a rolled back transaction gives its number back
	_ = db.Transaction(func(tx *gorm.DB) error {
		_, err := models.NextNumber(tx, models.InvoiceNumberSeries)
		require.NoError(t, err)
		return assert.AnError
	})
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		n, err := models.NextNumber(tx, models.InvoiceNumberSeries)
		assert.Equal(t, "INV-000004", n)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := models.NextNumber(tx, "credit_note")
		return err
	})
	assert.Error(t, err)
}

func TestSeedReferenceDataIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, models.SeedReferenceData(db))

	types, err := models.ListServiceTypes(context.Background(), db, "")
	require.NoError(t, err)
	assert.Len(t, types, 11)

	unload := serviceType(t, db, "CONTAINER_UNLOAD")
	assert.True(t, unload.IsCustomPricing)
	assert.False(t, unload.BaseRate.Valid)
}

// insertInvoice stores an invoice directly with the given status and due date.
func insertInvoice(t *testing.T, db *gorm.DB, customerId int, number string, status models.InvoiceStatus, due time.Time) *models.Invoice {
	t.Helper()
	inv := models.Invoice{
		InvoiceNumber: number,
		CustomerId:    customerId,
		PeriodStart:   date("2024-01-01"),
		PeriodEnd:     date("2024-01-31"),
		IssueDate:     date("2024-02-01"),
		DueDate:       due,
		Status:        status,
		TotalAmount:   dec("10.00"),
		Lines: []models.InvoiceLine{{
			LineNo: 1, ServiceTypeId: 1, Quantity: dec("1"), UnitRate: dec("10"), Amount: dec("10.00"),
		}},
	}
	require.NoError(t, db.Create(&inv).Error)
	return &inv
}

func TestUpdateInvoiceStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	inv := insertInvoice(t, db, customer.ID, "INV-900001", models.InvoiceStatusDraft, date("2024-03-02"))

	_, err := models.UpdateInvoiceStatus(ctx, db, inv.ID, models.InvoiceStatusOverdue, actor)
	require.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	sent, err := models.UpdateInvoiceStatus(ctx, db, inv.ID, models.InvoiceStatusSent, actor)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
	require.Len(t, sent.Lines, 1)
	require.NoError(t, sent.VerifyTotal())

	// same status is a no-op
	again, err := models.UpdateInvoiceStatus(ctx, db, inv.ID, models.InvoiceStatusSent, actor)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, again.Status)

	_, err = models.UpdateInvoiceStatus(ctx, db, inv.ID, models.InvoiceStatusDraft, actor)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	paid, err := models.UpdateInvoiceStatus(ctx, db, inv.ID, models.InvoiceStatusPaid, actor)
	require.NoError(t, err)
	assert.NotNil(t, paid.PaidAt)

	_, err = models.UpdateInvoiceStatus(ctx, db, inv.ID, models.InvoiceStatusCancelled, actor)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	_, err = models.UpdateInvoiceStatus(ctx, db, inv.ID, "void", actor)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = models.UpdateInvoiceStatus(ctx, db, 999, models.InvoiceStatusSent, actor)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	var events int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("event_type = ?", models.EventInvoiceStatusChanged).Count(&events).Error)
	assert.EqualValues(t, 2, events)
}

func TestMarkOverdueInvoices(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	pastDue := insertInvoice(t, db, customer.ID, "INV-900001", models.InvoiceStatusSent, date("2024-03-01"))
	dueToday := insertInvoice(t, db, customer.ID, "INV-900002", models.InvoiceStatusSent, date("2024-03-05"))
	draft := insertInvoice(t, db, customer.ID, "INV-900003", models.InvoiceStatusDraft, date("2024-03-01"))

	marked, err := models.MarkOverdueInvoices(ctx, db, date("2024-03-05"), actor)
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, pastDue.ID, marked[0].ID)

	got, err := models.GetInvoice(ctx, db, pastDue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, got.Status)
	for _, id := range []int{dueToday.ID, draft.ID} {
		got, err := models.GetInvoice(ctx, db, id)
		require.NoError(t, err)
		assert.NotEqual(t, models.InvoiceStatusOverdue, got.Status)
	}

	marked, err = models.MarkOverdueInvoices(ctx, db, date("2024-03-05"), actor)
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestListInvoices_Filters(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	acme := createCustomer(t, db, "ACME")
	globex := createCustomer(t, db, "GLOBEX")
	insertInvoice(t, db, acme.ID, "INV-900001", models.InvoiceStatusSent, date("2024-03-01"))
	insertInvoice(t, db, globex.ID, "INV-900002", models.InvoiceStatusDraft, date("2024-03-01"))

	list, err := models.ListInvoices(ctx, db, models.InvoiceFilter{CustomerId: acme.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "INV-900001", list[0].InvoiceNumber)
	assert.Len(t, list[0].Lines, 1)

	list, err = models.ListInvoices(ctx, db, models.InvoiceFilter{Status: models.InvoiceStatusDraft})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, globex.ID, list[0].CustomerId)
}

func TestDeleteCustomer_RefusedOnceInvoiced(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	acme := createCustomer(t, db, "ACME")
	insertInvoice(t, db, acme.ID, "INV-900001", models.InvoiceStatusSent, date("2024-03-01"))

	_, err := models.DeleteCustomer(ctx, db, acme.ID)
	assert.ErrorIs(t, err, models.ErrCustomerHasInvoices)

	fresh := createCustomer(t, db, "NEW")
	createProduct(t, db, fresh.ID, "SKU-1")
	_, err = models.DeleteCustomer(ctx, db, fresh.ID)
	require.NoError(t, err)
	products, err := models.ListProducts(ctx, db, models.ProductFilter{CustomerId: fresh.ID})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestCustomerLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	c, err := models.CreateCustomer(ctx, db, &models.NewCustomer{Code: " acme ", Name: "Acme", Phone: "(650) 253-0000"})
	require.NoError(t, err)
	assert.Equal(t, "ACME", c.Code)
	assert.Equal(t, "+16502530000", c.Phone)
	assert.Equal(t, models.BillingCycleMonthly, c.BillingCycle)
	assert.Equal(t, 30, c.PaymentTermsDays)

	_, err = models.CreateCustomer(ctx, db, &models.NewCustomer{Code: "ACME", Name: "Other"})
	assert.ErrorIs(t, err, models.ErrDuplicate)

	_, err = models.CreateCustomer(ctx, db, &models.NewCustomer{Code: "X", Name: "X", BillingCycle: "daily"})
	assert.ErrorIs(t, err, models.ErrValidation)

	off, err := models.ToggleActiveCustomer(ctx, db, c.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active())

	active, err := models.ListCustomers(ctx, db, models.CustomerFilter{IsActive: utils.NewTrue()})
	require.NoError(t, err)
	assert.Empty(t, active)
}
