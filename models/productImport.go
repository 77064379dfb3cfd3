package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ImportOptions struct {
	// ContinueOnError stores every valid row in its own transaction. When false the import is
	// all-or-nothing.
	ContinueOnError bool `json:"continue_on_error"`
	// UpdateExisting updates a product whose SKU already exists for the customer instead of
	// reporting a duplicate.
	UpdateExisting bool `json:"update_existing"`
}

type ImportRowError struct {
	Row int    `json:"row"`
	Sku string `json:"sku"`
	Err string `json:"error"`
}

type ImportRowWarning struct {
	Row     int    `json:"row"`
	Sku     string `json:"sku"`
	Message string `json:"message"`
}

type ImportResult struct {
	Succeeded int                `json:"succeeded"`
	Created   int                `json:"created"`
	Updated   int                `json:"updated"`
	Failed    int                `json:"failed"`
	Errors    []ImportRowError   `json:"errors"`
	Warnings  []ImportRowWarning `json:"warnings"`
}

// ProductImportRow is one data row keyed by normalized header. Row is the 1-based sheet row.
type ProductImportRow struct {
	Row    int
	Values map[string]string
}

func (r ProductImportRow) get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// NormalizeImportHeader maps "Units Per Case" and "units-per-case" to "units_per_case".
func NormalizeImportHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	h = strings.ToLower(h)
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(h)
	return h
}

type importParser struct {
	row ProductImportRow
	ve  ValidationError
}

func (p *importParser) decimal(column string) decimal.Decimal {
	v := p.row.get(column)
	if v == "" {
		return decimal.Zero
	}
	d, err := utils.ParseDecimal(v)
	if err != nil {
		p.ve.Add(column, "invalid number %q", v)
	}
	return d
}

func (p *importParser) nullDecimal(column string) decimal.NullDecimal {
	if p.row.get(column) == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: p.decimal(column), Valid: true}
}

func (p *importParser) int(column string) int {
	v := p.row.get(column)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// spreadsheets often store whole numbers as "24.0"
		d, derr := utils.ParseDecimal(v)
		if derr != nil || !d.Equal(d.Truncate(0)) {
			p.ve.Add(column, "invalid whole number %q", v)
			return 0
		}
		return int(d.IntPart())
	}
	return n
}

func (p *importParser) optionalInt(column string) *int {
	if p.row.get(column) == "" {
		return nil
	}
	n := p.int(column)
	return &n
}

func (p *importParser) bool(column string) bool {
	v := p.row.get(column)
	b, err := utils.ParseBool(v)
	if err != nil {
		p.ve.Add(column, "invalid boolean %q", v)
	}
	return b
}

func (p *importParser) optionalBool(column string) *bool {
	if p.row.get(column) == "" {
		return nil
	}
	b := p.bool(column)
	return &b
}

// ParseProductImportRow converts one import row into a product input for customerId.
func ParseProductImportRow(customerId int, row ProductImportRow) (*NewProduct, error) {
	p := &importParser{row: row}
	input := &NewProduct{
		CustomerId:  customerId,
		Sku:         NormalizeSku(row.get("sku")),
		Description: row.get("description"),

		UnitWeight: p.decimal("unit_weight"),
		UnitLength: p.decimal("unit_length"),
		UnitWidth:  p.decimal("unit_width"),
		UnitHeight: p.decimal("unit_height"),

		UnitsPerCase: p.int("units_per_case"),
		CaseWeight:   p.decimal("case_weight"),
		CaseLength:   p.decimal("case_length"),
		CaseWidth:    p.decimal("case_width"),
		CaseHeight:   p.decimal("case_height"),

		HasMasterCarton:      p.bool("has_master_carton"),
		CasesPerMasterCarton: p.optionalInt("cases_per_master_carton"),
		MasterCartonWeight:   p.nullDecimal("master_carton_weight"),
		MasterCartonLength:   p.nullDecimal("master_carton_length"),
		MasterCartonWidth:    p.nullDecimal("master_carton_width"),
		MasterCartonHeight:   p.nullDecimal("master_carton_height"),

		CasesPerPallet: p.int("cases_per_pallet"),
		PalletTi:       p.int("pallet_ti"),
		PalletHi:       p.int("pallet_hi"),
		PalletWeight:   p.nullDecimal("pallet_weight"),

		TemperatureControlled: p.bool("temperature_controlled"),
		MinTemperature:        p.nullDecimal("min_temperature"),
		MaxTemperature:        p.nullDecimal("max_temperature"),
		IsHazmat:              p.bool("is_hazmat"),
		IsFragile:             p.bool("is_fragile"),
		IsStackable:           p.optionalBool("is_stackable"),
		ShelfLifeDays:         p.optionalInt("shelf_life_days"),
	}
	if input.Sku == "" {
		p.ve.Add("sku", "is required")
	}
	if err := p.ve.OrNil(); err != nil {
		return nil, err
	}
	return input, nil
}

type preparedImportRow struct {
	row      int
	input    *NewProduct
	product  *Product
	existing bool
}

// ImportProducts parses, derives, validates and stores rows for one customer.
func ImportProducts(ctx context.Context, db *gorm.DB, customerId int, rows []ProductImportRow, opts ImportOptions, policy PalletPatternPolicy) (*ImportResult, error) {
	if _, err := utils.FetchModel[Customer](db.WithContext(ctx), customerId); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	fail := func(row int, sku string, err error) {
		result.Failed++
		result.Errors = append(result.Errors, ImportRowError{Row: row, Sku: sku, Err: err.Error()})
	}

	existing, err := productsBySku(ctx, db, customerId)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	var prepared []preparedImportRow
	for _, row := range rows {
		sku := NormalizeSku(row.get("sku"))
		if first, dup := seen[sku]; dup && sku != "" {
			fail(row.Row, sku, fmt.Errorf("%w: sku %s repeats row %d", ErrDuplicate, sku, first))
			continue
		}
		seen[sku] = row.Row

		input, err := ParseProductImportRow(customerId, row)
		if err != nil {
			fail(row.Row, sku, err)
			continue
		}
		current, exists := existing[input.Sku]
		if exists && !opts.UpdateExisting {
			fail(row.Row, sku, fmt.Errorf("%w: sku %s already exists for customer %d", ErrDuplicate, input.Sku, customerId))
			continue
		}
		product, warnings, err := input.BuildProduct(current, policy)
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, ImportRowWarning{Row: row.Row, Sku: sku, Message: w})
		}
		if err != nil {
			fail(row.Row, sku, err)
			continue
		}
		prepared = append(prepared, preparedImportRow{row: row.Row, input: input, product: product, existing: exists})
	}

	if !opts.ContinueOnError {
		if result.Failed > 0 {
			result.Failed = len(rows)
			return result, nil
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, p := range prepared {
				if err := storeImportedProduct(tx, p); err != nil {
					return fmt.Errorf("row %d: %w", p.row, err)
				}
			}
			return nil
		})
		if err != nil {
			result.Failed = len(rows)
			result.Errors = append(result.Errors, ImportRowError{Err: err.Error()})
			return result, nil
		}
		for _, p := range prepared {
			result.count(p.existing)
		}
		return result, nil
	}

	for _, p := range prepared {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return storeImportedProduct(tx, p)
		})
		if err != nil {
			fail(p.row, p.input.Sku, err)
			continue
		}
		result.count(p.existing)
	}
	return result, nil
}

func (r *ImportResult) count(updated bool) {
	r.Succeeded++
	if updated {
		r.Updated++
	} else {
		r.Created++
	}
}

func storeImportedProduct(tx *gorm.DB, p preparedImportRow) error {
	if p.existing {
		return updateProductTx(tx, p.input, p.product)
	}
	return createProductTx(tx, p.input, p.product)
}

func productsBySku(ctx context.Context, db *gorm.DB, customerId int) (map[string]*Product, error) {
	products, err := ListProducts(ctx, db, ProductFilter{CustomerId: customerId})
	if err != nil {
		return nil, err
	}
	bySku := make(map[string]*Product, len(products))
	for _, p := range products {
		bySku[p.Sku] = p
	}
	return bySku, nil
}

// ErrEmptyImport is returned by the readers when a file has no header row.
var ErrEmptyImport = errors.New("import file has no header row")
