package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func createCustomer(t *testing.T, db *gorm.DB, code string) *models.Customer {
	t.Helper()
	c, err := models.CreateCustomer(context.Background(), db, &models.NewCustomer{Code: code, Name: code + " Inc"})
	require.NoError(t, err)
	return c
}

func serviceType(t *testing.T, db *gorm.DB, code string) *models.ServiceType {
	t.Helper()
	st, err := models.GetServiceTypeByCode(context.Background(), db, code)
	require.NoError(t, err)
	return st
}

// productInput describes a 12-per-case, 40-cases-per-pallet product.
func productInput(customerId int, sku string) *models.NewProduct {
	return &models.NewProduct{
		CustomerId:     customerId,
		Sku:            sku,
		UnitLength:     dec("4"),
		UnitWidth:      dec("3"),
		UnitHeight:     dec("2"),
		UnitsPerCase:   12,
		CaseLength:     dec("12"),
		CaseWidth:      dec("10"),
		CaseHeight:     dec("8"),
		CasesPerPallet: 40,
		PalletTi:       8,
		PalletHi:       5,
	}
}

func createProduct(t *testing.T, db *gorm.DB, customerId int, sku string) *models.Product {
	t.Helper()
	p, _, err := models.CreateProduct(context.Background(), db, productInput(customerId, sku), models.PalletPatternWarn)
	require.NoError(t, err)
	return p
}
