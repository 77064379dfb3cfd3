package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func TestResolveRate_CustomerOverrideAndBase(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	rcv := serviceType(t, db, "RCV_PALLET")

	_, err := models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: rcv.ID, Rate: dec("10.00"),
		EffectiveFrom: date("2024-01-01"), EffectiveTo: datePtr("2024-01-31"),
	})
	require.NoError(t, err)

	q, err := models.ResolveRate(db, customer.ID, rcv.ID, date("2024-01-31").Add(18*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.RateSourceCustomer, q.Source)
	assert.True(t, q.Rate.Equal(dec("10")))

	q, err = models.ResolveRate(db, customer.ID, rcv.ID, date("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, models.RateSourceBase, q.Source)
	assert.True(t, q.Rate.Equal(dec("12.5")))

	other := createCustomer(t, db, "GLOBEX")
	q, err = models.ResolveRate(db, other.ID, rcv.ID, date("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, models.RateSourceBase, q.Source)
}

func TestResolveRate_CustomPricing(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	unload := serviceType(t, db, "CONTAINER_UNLOAD")

	_, err := models.ResolveRate(db, customer.ID, unload.ID, date("2024-01-15"))
	require.ErrorIs(t, err, models.ErrNoApplicableRate)

	_, err = models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: unload.ID, Rate: dec("450"), EffectiveFrom: date("2024-01-01"),
	})
	require.NoError(t, err)

	q, err := models.ResolveRate(db, customer.ID, unload.ID, date("2024-01-15"))
	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(dec("450")))
}

func TestCreateServiceRate_RejectsOverlap(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	pick := serviceType(t, db, "PICK_UNIT")

	first, err := models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Rate: dec("0.40"), EffectiveFrom: date("2024-01-01"),
	})
	require.NoError(t, err)

	_, err = models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Rate: dec("0.42"), EffectiveFrom: date("2024-06-01"),
	})
	require.ErrorIs(t, err, models.ErrOverlappingRates)

	// close the first range, then the hand-over succeeds
	_, err = models.UpdateServiceRate(ctx, db, first.ID, &models.ServiceRateChange{EffectiveTo: datePtr("2024-05-31")})
	require.NoError(t, err)
	second, err := models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Rate: dec("0.42"), EffectiveFrom: date("2024-06-01"),
	})
	require.NoError(t, err)

	// reopening the first would overlap the second
	_, err = models.UpdateServiceRate(ctx, db, first.ID, &models.ServiceRateChange{ClearEnd: true})
	assert.ErrorIs(t, err, models.ErrOverlappingRates)

	// a deactivated rate no longer blocks
	_, err = models.DeactivateServiceRate(ctx, db, second.ID)
	require.NoError(t, err)
	_, err = models.UpdateServiceRate(ctx, db, first.ID, &models.ServiceRateChange{ClearEnd: true})
	require.NoError(t, err)

	q, err := models.ResolveRate(db, customer.ID, pick.ID, date("2024-07-01"))
	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(dec("0.4")))
}

func TestCreateServiceRate_ConcurrentFirstRatesForPair(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	pick := serviceType(t, db, "PICK_UNIT")

	const writers = 4
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := models.CreateServiceRate(ctx, db, &models.NewServiceRate{
				CustomerId: customer.ID, ServiceTypeId: pick.ID, Rate: dec("0.40"),
				EffectiveFrom: date("2024-01-01").AddDate(0, i, 0),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, models.ErrOverlappingRates):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	assert.Equal(t, 1, created)

	rates, err := models.ListServiceRates(ctx, db, customer.ID, pick.ID)
	require.NoError(t, err)
	assert.Len(t, rates, 1)
}

func TestServiceRateWriters_UnknownIds(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: 999, ServiceTypeId: serviceType(t, db, "PICK_UNIT").ID, Rate: dec("1"), EffectiveFrom: date("2024-02-01"),
	})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.AsMap(), "customer_id")

	_, err = models.UpdateServiceRate(ctx, db, 999, &models.ServiceRateChange{ClearEnd: true})
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestCreateServiceRate_Validation(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	pick := serviceType(t, db, "PICK_UNIT")

	_, err := models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Rate: dec("-1"),
		EffectiveFrom: date("2024-02-01"), EffectiveTo: datePtr("2024-01-01"),
	})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := ve.AsMap()
	assert.Contains(t, fields, "rate")
	assert.Contains(t, fields, "effective_to")

	_, err = models.CreateServiceRate(ctx, db, &models.NewServiceRate{
		CustomerId: customer.ID, ServiceTypeId: 999, Rate: dec("1"), EffectiveFrom: date("2024-02-01"),
	})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.AsMap(), "service_type_id")
}

func TestServiceRecords_LockedOnceInvoiced(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	pick := serviceType(t, db, "PICK_UNIT")

	rec, err := models.CreateServiceRecord(ctx, db, &models.NewServiceRecord{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Quantity: dec("10"), PerformedOn: date("2024-01-10").Add(9 * time.Hour),
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-10"), rec.PerformedOn)
	assert.Equal(t, actor, rec.CreatedBy)

	_, err = models.CreateServiceRecord(ctx, db, &models.NewServiceRecord{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Quantity: dec("0"), PerformedOn: date("2024-01-10"),
	}, actor)
	assert.ErrorIs(t, err, models.ErrValidation)

	invoiceId := 42
	require.NoError(t, db.Model(&models.ServiceRecord{}).Where("id = ?", rec.ID).Update("invoice_id", invoiceId).Error)

	_, err = models.UpdateServiceRecord(ctx, db, rec.ID, &models.NewServiceRecord{
		CustomerId: customer.ID, ServiceTypeId: pick.ID, Quantity: dec("11"), PerformedOn: date("2024-01-10"),
	})
	assert.ErrorIs(t, err, models.ErrServiceRecordInvoiced)
	_, err = models.DeleteServiceRecord(ctx, db, rec.ID)
	assert.ErrorIs(t, err, models.ErrServiceRecordInvoiced)

	invoiced := true
	list, err := models.ListServiceRecords(ctx, db, models.ServiceRecordFilter{CustomerId: customer.ID, Invoiced: &invoiced})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Quantity.Equal(dec("10")))
}

func TestServiceRecords_InactiveCustomer(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	pick := serviceType(t, db, "PICK_UNIT")
	_, err := models.ToggleActiveCustomer(ctx, db, customer.ID, false)
	require.NoError(t, err)

	input := func() *models.NewServiceRecord {
		return &models.NewServiceRecord{CustomerId: customer.ID, ServiceTypeId: pick.ID, Quantity: dec("1"), PerformedOn: date("2024-01-10")}
	}
	_, err = models.CreateServiceRecord(ctx, db, input(), actor)
	assert.ErrorIs(t, err, models.ErrCustomerInactive)

	t.Setenv("ALLOW_INACTIVE_CUSTOMER_RECORDS", "true")
	require.True(t, config.AllowInactiveCustomerRecords())
	_, err = models.CreateServiceRecord(ctx, db, input(), actor)
	assert.NoError(t, err)
}
