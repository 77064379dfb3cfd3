package models_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const actor = "ops-1"

func post(t *testing.T, db *gorm.DB, input models.InventoryTransactionInput) (*models.InventoryPosting, error) {
	t.Helper()
	if input.Actor == "" {
		input.Actor = actor
	}
	return models.ApplyInventoryTransaction(db, input)
}

func inventoryOf(t *testing.T, db *gorm.DB, productId int) *models.ProductInventory {
	t.Helper()
	inv, err := models.GetProductInventory(context.Background(), db, productId)
	require.NoError(t, err)
	return inv
}

func countTransactions(t *testing.T, db *gorm.DB, productId int) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Where("product_id = ?", productId).Count(&n).Error)
	return n
}

func TestApplyInventoryTransaction_Receipt(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	posting, err := post(t, db, models.InventoryTransactionInput{
		ProductId: product.ID,
		Type:      models.InventoryTransactionReceipt,
		Quantity:  models.LedgerQuantity{Pallets: 1, Cases: 2, Units: 5},
		Reference: "PO-100",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 480+24+5, posting.Record.OnHandUnits)
	assert.EqualValues(t, 42, posting.Record.OnHandCases)
	assert.EqualValues(t, 1, posting.Record.OnHandPallets)
	assert.NotNil(t, posting.Record.LastReceivedAt)
	require.Len(t, posting.Transactions, 1)
	txn := posting.Transactions[0]
	assert.EqualValues(t, 509, txn.QuantityUnits)
	assert.EqualValues(t, 509, txn.BalanceAfter)
	assert.EqualValues(t, 2, txn.Cases)
	assert.Equal(t, actor, txn.Actor)
	assert.Equal(t, "PO-100", txn.Reference)

	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 509, inv.Record.OnHandUnits)
	require.Len(t, inv.Balances, 1)
	assert.EqualValues(t, 509, inv.Balances[0].OnHandUnits)

	var events int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("event_type = ?", models.EventInventoryTransactionPosted).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestApplyInventoryTransaction_ShipmentBeyondStockChangesNothing(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	_, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Cases: 1}})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionShipment, Quantity: models.LedgerQuantity{Units: 13}})
	require.ErrorIs(t, err, models.ErrInsufficientInventory)

	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 12, inv.Record.OnHandUnits)
	assert.EqualValues(t, 1, inv.Record.OnHandCases)
	assert.Nil(t, inv.Record.LastShippedAt)
	assert.EqualValues(t, 1, countTransactions(t, db, product.ID))

	posting, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionShipment, Quantity: models.LedgerQuantity{Units: 12}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, posting.Record.OnHandUnits)
	assert.EqualValues(t, -12, posting.Transactions[0].QuantityUnits)
	assert.NotNil(t, posting.Record.LastShippedAt)
}

func TestApplyInventoryTransaction_AdjustmentSetsAbsoluteCount(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	_, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 100}})
	require.NoError(t, err)

	posting, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionAdjustment, Quantity: models.LedgerQuantity{Units: 90}, Notes: "cycle count"})
	require.NoError(t, err)
	assert.EqualValues(t, 90, posting.Record.OnHandUnits)
	assert.EqualValues(t, -10, posting.Transactions[0].QuantityUnits)

	posting, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionAdjustment})
	require.NoError(t, err)
	assert.EqualValues(t, 0, posting.Record.OnHandUnits)
	assert.EqualValues(t, -90, posting.Transactions[0].QuantityUnits)
}

func TestApplyInventoryTransaction_Validation(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	cases := []models.InventoryTransactionInput{
		{ProductId: product.ID, Type: "move", Quantity: models.LedgerQuantity{Units: 1}},
		{ProductId: product.ID, Type: models.InventoryTransactionReceipt},
		{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: -1}},
		{ProductId: product.ID, Type: models.InventoryTransactionTransfer, Quantity: models.LedgerQuantity{Units: 1}},
		{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1}, DestinationWarehouseId: 2},
		{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1}, WarehouseId: 999},
	}
	for i, input := range cases {
		_, err := post(t, db, input)
		assert.ErrorIs(t, err, models.ErrValidation, "case %d", i)
	}

	_, err := models.ApplyInventoryTransaction(db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1}})
	assert.ErrorIs(t, err, models.ErrValidation, "actor is required")

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: 999, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1}})
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	assert.EqualValues(t, 0, countTransactions(t, db, product.ID))
}

func TestApplyInventoryTransaction_Transfer(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")
	overflow, err := models.CreateWarehouse(ctx, db, &models.NewWarehouse{Code: "ovf", Name: "Overflow"})
	require.NoError(t, err)
	assert.Equal(t, "OVF", overflow.Code)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Cases: 10}})
	require.NoError(t, err)

	posting, err := post(t, db, models.InventoryTransactionInput{
		ProductId:              product.ID,
		Type:                   models.InventoryTransactionTransfer,
		Quantity:               models.LedgerQuantity{Cases: 4},
		DestinationWarehouseId: overflow.ID,
	})
	require.NoError(t, err)
	require.Len(t, posting.Transactions, 2)
	out, in := posting.Transactions[0], posting.Transactions[1]
	assert.Equal(t, models.TransferLegOut, out.TransferLeg)
	assert.EqualValues(t, -48, out.QuantityUnits)
	assert.EqualValues(t, 72, out.BalanceAfter)
	assert.Equal(t, models.TransferLegIn, in.TransferLeg)
	assert.Equal(t, overflow.ID, in.WarehouseId)
	assert.EqualValues(t, 48, in.BalanceAfter)
	assert.Equal(t, out.Reference, in.Reference)
	assert.Contains(t, out.Reference, "TRF-")

	// a transfer moves stock without changing the product total
	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 120, inv.Record.OnHandUnits)
	require.Len(t, inv.Balances, 2)
	var sum int64
	for _, b := range inv.Balances {
		sum += b.OnHandUnits
	}
	assert.EqualValues(t, 120, sum)
}

func TestApplyInventoryTransaction_TransferFailures(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")
	overflow, err := models.CreateWarehouse(ctx, db, &models.NewWarehouse{Code: "OVF", Name: "Overflow"})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 10}})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionTransfer, Quantity: models.LedgerQuantity{Units: 11}, DestinationWarehouseId: overflow.ID})
	assert.ErrorIs(t, err, models.ErrInsufficientInventory)

	mainWh, err := models.GetWarehouseByCode(db, models.DefaultWarehouseCode)
	require.NoError(t, err)
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionTransfer, Quantity: models.LedgerQuantity{Units: 1}, DestinationWarehouseId: mainWh.ID})
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.EqualValues(t, 1, countTransactions(t, db, product.ID))
	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 10, inv.Record.OnHandUnits)
}

func TestApplyInventoryTransaction_WarehouseCapacity(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	first := createProduct(t, db, customer.ID, "SKU-1")
	second := createProduct(t, db, customer.ID, "SKU-2")
	capacity := int64(2)
	small, err := models.CreateWarehouse(ctx, db, &models.NewWarehouse{Code: "SMALL", Name: "Small", PalletCapacity: &capacity})
	require.NoError(t, err)

	// a partial pallet takes a whole position
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: first.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1}, WarehouseId: small.ID})
	require.NoError(t, err)
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: second.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Pallets: 1}, WarehouseId: small.ID})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: second.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 1}, WarehouseId: small.ID})
	require.ErrorIs(t, err, models.ErrLocationCapacityExceeded)

	// topping up an already opened pallet fits
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: first.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 100}, WarehouseId: small.ID})
	require.NoError(t, err)

	inv := inventoryOf(t, db, second.ID)
	assert.EqualValues(t, 480, inv.Record.OnHandUnits)
}

func TestInventoryTransactionsAreAppendOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	posting, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 5}})
	require.NoError(t, err)
	txn := posting.Transactions[0]

	err = db.Model(&txn).Update("notes", "edited").Error
	assert.ErrorIs(t, err, models.ErrImmutableTransaction)
	err = db.Delete(&txn).Error
	assert.ErrorIs(t, err, models.ErrImmutableTransaction)

	list, err := models.ListInventoryTransactions(context.Background(), db, models.InventoryTransactionFilter{ProductId: product.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Notes)
}

func TestDeleteProduct_KeepsTransactionLog(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	_, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 5}})
	require.NoError(t, err)

	_, err = models.DeleteProduct(ctx, db, product.ID)
	require.NoError(t, err)

	_, err = models.GetProduct(ctx, db, product.ID)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
	assert.EqualValues(t, 1, countTransactions(t, db, product.ID))
	var balances int64
	require.NoError(t, db.Model(&models.InventoryBalance{}).Where("product_id = ?", product.ID).Count(&balances).Error)
	assert.Zero(t, balances)
}

func requireQuantityError(t *testing.T, err error) {
	t.Helper()
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve), "expected a ValidationError, got %v", err)
	assert.True(t, ve.Has("quantity"), "expected a quantity error, got %v", ve.AsMap())
}

func balanceIn(inv *models.ProductInventory, warehouseId int) int64 {
	for _, b := range inv.Balances {
		if b.WarehouseId == warehouseId {
			return b.OnHandUnits
		}
	}
	return 0
}

func TestApplyInventoryTransaction_RejectsQuantitiesPastInt64(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")

	_, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 10}})
	require.NoError(t, err)

	types := []models.InventoryTransactionType{
		models.InventoryTransactionReceipt,
		models.InventoryTransactionShipment,
		models.InventoryTransactionAdjustment,
	}
	quantities := []models.LedgerQuantity{
		{Pallets: 19215358410114117},
		{Pallets: 38430716820228233},
		{Cases: math.MaxInt64 / 12, Units: 12},
	}
	for _, typ := range types {
		for _, q := range quantities {
			_, err := post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: typ, Quantity: q})
			requireQuantityError(t, err)
		}
	}

	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 10, inv.Record.OnHandUnits)
	require.Len(t, inv.Balances, 1)
	assert.EqualValues(t, 10, inv.Balances[0].OnHandUnits)
	assert.EqualValues(t, 1, countTransactions(t, db, product.ID))
}

func TestApplyInventoryTransaction_RejectsOnHandPastInt64(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")
	overflow, err := models.CreateWarehouse(ctx, db, &models.NewWarehouse{Code: "OVF", Name: "Overflow"})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 10}})
	require.NoError(t, err)
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: 10}, WarehouseId: overflow.ID})
	require.NoError(t, err)

	// each count fits on its own, the product total does not
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Units: math.MaxInt64 - 15}})
	requireQuantityError(t, err)
	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionAdjustment, Quantity: models.LedgerQuantity{Units: math.MaxInt64}, WarehouseId: overflow.ID})
	requireQuantityError(t, err)

	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 20, inv.Record.OnHandUnits)
	assert.EqualValues(t, 10, balanceIn(inv, overflow.ID))
	assert.EqualValues(t, 2, countTransactions(t, db, product.ID))
}

func TestApplyInventoryTransaction_TransferIntoFullWarehouse(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer := createCustomer(t, db, "ACME")
	product := createProduct(t, db, customer.ID, "SKU-1")
	mainWh, err := models.GetWarehouseByCode(db, models.DefaultWarehouseCode)
	require.NoError(t, err)
	capacity := int64(1)
	small, err := models.CreateWarehouse(ctx, db, &models.NewWarehouse{Code: "SMALL", Name: "Small", PalletCapacity: &capacity})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{ProductId: product.ID, Type: models.InventoryTransactionReceipt, Quantity: models.LedgerQuantity{Pallets: 3}})
	require.NoError(t, err)

	_, err = post(t, db, models.InventoryTransactionInput{
		ProductId:              product.ID,
		Type:                   models.InventoryTransactionTransfer,
		Quantity:               models.LedgerQuantity{Pallets: 2},
		DestinationWarehouseId: small.ID,
	})
	require.ErrorIs(t, err, models.ErrLocationCapacityExceeded)

	inv := inventoryOf(t, db, product.ID)
	assert.EqualValues(t, 1440, inv.Record.OnHandUnits)
	assert.EqualValues(t, 1440, balanceIn(inv, mainWh.ID))
	assert.EqualValues(t, 0, balanceIn(inv, small.ID))
	assert.EqualValues(t, 1, countTransactions(t, db, product.ID))

	// one pallet still fits
	posting, err := post(t, db, models.InventoryTransactionInput{
		ProductId:              product.ID,
		Type:                   models.InventoryTransactionTransfer,
		Quantity:               models.LedgerQuantity{Pallets: 1},
		DestinationWarehouseId: small.ID,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 480, posting.Transactions[1].BalanceAfter)
	assert.EqualValues(t, 3, countTransactions(t, db, product.ID))
}
