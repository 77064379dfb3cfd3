package models_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProduct_StoredDimensionsKeepDerivedVolume(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")

	input := productInput(customer.ID, "SKU-1")
	input.UnitLength = dec("1.0001")
	input.UnitWidth = dec("1.0001")
	input.UnitHeight = dec("1.0001")
	created, _, err := models.CreateProduct(ctx, db, input, models.PalletPatternWarn)
	require.NoError(t, err)

	stored, err := models.GetProduct(ctx, db, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.UnitLength.Equal(dec("1.0001")))
	volume := stored.UnitVolume
	stored.DeriveVolumes()
	assert.True(t, stored.UnitVolume.Equal(volume), "stored %s, derived %s", volume, stored.UnitVolume)
	assert.True(t, volume.Equal(dec("1.000300030001")))
}

func TestCreateProduct_RejectsDimensionsFinerThanStored(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")

	input := productInput(customer.ID, "SKU-1")
	input.UnitLength = dec("1.00005")
	_, _, err := models.CreateProduct(ctx, db, input, models.PalletPatternWarn)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must have at most 4 decimal places", ve.AsMap()["unit_length"])

	products, err := models.ListProducts(ctx, db, models.ProductFilter{CustomerId: customer.ID})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestUpdateProduct_RefreshesFullCasesAndPallets(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	_, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1000}})
	require.NoError(t, err)
	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 83, inv.Record.OnHandCases)
	assert.EqualValues(t, 2, inv.Record.OnHandPallets)

	input := productInput(customer.ID, "SKU-1")
	input.UnitsPerCase = 10
	input.CasesPerPallet = 20
	input.PalletTi = 5
	input.PalletHi = 4
	_, _, err = models.UpdateProduct(ctx, db, product.ID, input, models.PalletPatternWarn)
	require.NoError(t, err)

	inv = inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 1000, inv.Record.OnHandUnits)
	assert.EqualValues(t, 100, inv.Record.OnHandCases)
	assert.EqualValues(t, 5, inv.Record.OnHandPallets)
}

func TestCreateProduct_TrimsSkuBeforeImportMatching(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")

	created := createProduct(t, db, customer.ID, "  SKU-1 ")
	assert.Equal(t, "SKU-1", created.Sku)

	_, _, err := models.CreateProduct(ctx, db, productInput(customer.ID, "SKU-1"), models.PalletPatternWarn)
	assert.ErrorIs(t, err, models.ErrDuplicate)

	rows := importRows(t, "SKU-1,Widget,12,40,8,5,4,3,2,12,10,8\n")
	result, err := models.ImportProducts(ctx, db, customer.ID, rows, models.ImportOptions{ContinueOnError: true}, models.PalletPatternWarn)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Err, "already exists")
}

func TestImportProducts_PaddedSkusRepeatEachOther(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")

	row := func(n int, sku string) models.ProductImportRow {
		return models.ProductImportRow{Row: n, Values: map[string]string{
			"sku": sku, "units_per_case": "12", "cases_per_pallet": "40",
			"unit_length": "4", "unit_width": "3", "unit_height": "2",
			"case_length": "12", "case_width": "10", "case_height": "8",
		}}
	}
	rows := []models.ProductImportRow{row(2, " SKU-9"), row(3, "SKU-9 ")}
	result, err := models.ImportProducts(ctx, db, customer.ID, rows, models.ImportOptions{ContinueOnError: true}, models.PalletPatternWarn)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Equal(t, "SKU-9", result.Errors[0].Sku)
	assert.Contains(t, result.Errors[0].Err, "repeats row 2")

	products, err := models.ListProducts(ctx, db, models.ProductFilter{CustomerId: customer.ID})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "SKU-9", products[0].Sku)
}
