package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildInvoiceWorkbook(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := &models.Invoice{
		InvoiceNumber: "INV-000042",
		PeriodStart:   day,
		PeriodEnd:     day.AddDate(0, 1, -1),
		IssueDate:     day.AddDate(0, 1, 0),
		DueDate:       day.AddDate(0, 1, 30),
		Status:        models.InvoiceStatusDraft,
		TotalAmount:   decimal.RequireFromString("61.25"),
		Lines: []models.InvoiceLine{
			{LineNo: 1, ServiceTypeId: 1, Description: "Receiving - palletized", Quantity: decimal.NewFromInt(4), UnitRate: decimal.RequireFromString("12.50"), Amount: decimal.NewFromInt(50)},
			{LineNo: 2, ServiceTypeId: 6, Description: "Pick per unit", Quantity: decimal.NewFromInt(25), UnitRate: decimal.RequireFromString("0.45"), Amount: decimal.RequireFromString("11.25")},
		},
	}
	customer := &models.Customer{Code: "ACME", Name: "Acme"}
	serviceTypes := map[int]*models.ServiceType{
		1: {ID: 1, Code: "RCV_PALLET", BillingUnit: models.BillingUnitPerPallet},
	}

	f, err := buildInvoiceWorkbook(invoice, customer, serviceTypes)
	require.NoError(t, err)
	defer f.Close()

	cells := map[string]string{
		"A1":  "Invoice",
		"B1":  "INV-000042",
		"B2":  "Acme (ACME)",
		"B3":  "2024-03-01 to 2024-03-31",
		"A8":  "Line",
		"B9":  "RCV_PALLET",
		"D9":  "per_pallet",
		"C10": "Pick per unit",
		// unknown service types leave code and unit blank
		"B10": "",
	}
	for cell, want := range cells {
		got, err := f.GetCellValue(invoiceSheet, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	total, err := f.GetCellValue(invoiceSheet, "F11")
	require.NoError(t, err)
	assert.Equal(t, "Total", total)
}

func TestExportInvoiceXlsx_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	_, _, err := ExportInvoiceXlsx(context.Background(), db, 1)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestExportInvoiceXlsx(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer, err := models.CreateCustomer(ctx, db, &models.NewCustomer{Code: "ACME", Name: "Acme"})
	require.NoError(t, err)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := models.Invoice{
		InvoiceNumber: "INV-000007",
		CustomerId:    customer.ID,
		PeriodStart:   day,
		PeriodEnd:     day.AddDate(0, 1, -1),
		IssueDate:     day.AddDate(0, 1, 0),
		DueDate:       day.AddDate(0, 1, 30),
		Status:        models.InvoiceStatusDraft,
		TotalAmount:   decimal.NewFromInt(25),
		Lines: []models.InvoiceLine{
			{LineNo: 1, ServiceTypeId: 1, Description: "Receiving - palletized", Quantity: decimal.NewFromInt(2), UnitRate: decimal.RequireFromString("12.50"), Amount: decimal.NewFromInt(25)},
		},
	}
	require.NoError(t, db.Create(&invoice).Error)

	buf, filename, err := ExportInvoiceXlsx(ctx, db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-000007.xlsx", filename)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	code, err := f.GetCellValue(invoiceSheet, "B9")
	require.NoError(t, err)
	assert.Equal(t, "RCV_PALLET", code)
}

func TestGetWarehouseOccupancyReport(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	customer, err := models.CreateCustomer(ctx, db, &models.NewCustomer{Code: "ACME", Name: "Acme"})
	require.NoError(t, err)
	product, _, err := models.CreateProduct(ctx, db, &models.NewProduct{
		CustomerId:     customer.ID,
		Sku:            "SKU-1",
		UnitLength:     decimal.NewFromInt(4),
		UnitWidth:      decimal.NewFromInt(3),
		UnitHeight:     decimal.NewFromInt(2),
		UnitsPerCase:   12,
		CaseLength:     decimal.NewFromInt(12),
		CaseWidth:      decimal.NewFromInt(10),
		CaseHeight:     decimal.NewFromInt(8),
		CasesPerPallet: 40,
		PalletTi:       8,
		PalletHi:       5,
	}, models.PalletPatternWarn)
	require.NoError(t, err)

	_, err = models.ApplyInventoryTransaction(db.WithContext(ctx), models.InventoryTransactionInput{
		ProductId: product.ID,
		Type:      models.InventoryTransactionReceipt,
		Quantity:  models.LedgerQuantity{Pallets: 1, Units: 1},
		Actor:     "tester",
	})
	require.NoError(t, err)

	report, err := GetWarehouseOccupancyReport(ctx, db)
	require.NoError(t, err)
	require.Len(t, report, 1)
	mainWh := report[0]
	assert.Equal(t, models.DefaultWarehouseCode, mainWh.Code)
	assert.EqualValues(t, 2, mainWh.PalletPositions)
	require.Len(t, mainWh.Customers, 1)
	assert.Equal(t, customer.ID, mainWh.Customers[0].CustomerId)
	assert.EqualValues(t, 481, mainWh.Customers[0].OnHandUnits)
	assert.Equal(t, 1, mainWh.Customers[0].Products)
}
