package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var masterCartonFields = []string{
	"cases_per_master_carton",
	"master_carton_weight",
	"master_carton_length",
	"master_carton_width",
	"master_carton_height",
}

// ValidatePackaging checks the unit -> case -> master carton -> pallet hierarchy and the storage
// requirements of p. Problems come back as a *ValidationError; a TI x HI mismatch under the warn
// policy comes back as a warning instead.
func ValidatePackaging(p *Product, policy PalletPatternPolicy) ([]string, error) {
	ve := &ValidationError{}
	var warnings []string

	if strings.TrimSpace(p.Sku) == "" {
		ve.Add("sku", "is required")
	}
	if p.UnitsPerCase < 1 {
		ve.Add("units_per_case", "must be at least 1")
	}
	if p.CasesPerPallet < 1 {
		ve.Add("cases_per_pallet", "must be at least 1")
	}

	nonNegative(ve, "unit_weight", p.UnitWeight)
	nonNegative(ve, "unit_length", p.UnitLength)
	nonNegative(ve, "unit_width", p.UnitWidth)
	nonNegative(ve, "unit_height", p.UnitHeight)
	nonNegative(ve, "case_weight", p.CaseWeight)
	nonNegative(ve, "case_length", p.CaseLength)
	nonNegative(ve, "case_width", p.CaseWidth)
	nonNegative(ve, "case_height", p.CaseHeight)
	nonNegativeOptional(ve, "pallet_weight", p.PalletWeight)

	validateMasterCarton(ve, p)
	validateStorableScale(ve, p)

	if p.PalletTi < 0 {
		ve.Add("pallet_ti", "must not be negative")
	}
	if p.PalletHi < 0 {
		ve.Add("pallet_hi", "must not be negative")
	}
	if p.PalletTi > 0 && p.PalletHi > 0 && p.CasesPerPallet >= 1 && p.PalletTi*p.PalletHi != p.CasesPerPallet {
		msg := fmt.Sprintf("ti x hi (%d x %d = %d) does not match cases per pallet (%d)",
			p.PalletTi, p.PalletHi, p.PalletTi*p.PalletHi, p.CasesPerPallet)
		switch policy {
		case PalletPatternReject:
			ve.Add("pallet_ti", "%s", msg)
		case PalletPatternIgnore:
		default:
			warnings = append(warnings, msg)
		}
	}

	if p.TemperatureControlled && p.MinTemperature.Valid && p.MaxTemperature.Valid &&
		p.MinTemperature.Decimal.GreaterThan(p.MaxTemperature.Decimal) {
		ve.Add("min_temperature", "must not exceed max_temperature")
	}
	if p.ShelfLifeDays != nil && *p.ShelfLifeDays < 0 {
		ve.Add("shelf_life_days", "must not be negative")
	}

	return warnings, ve.OrNil()
}

func validateMasterCarton(ve *ValidationError, p *Product) {
	present := map[string]bool{
		"cases_per_master_carton": p.CasesPerMasterCarton != nil,
		"master_carton_weight":    p.MasterCartonWeight.Valid,
		"master_carton_length":    p.MasterCartonLength.Valid,
		"master_carton_width":     p.MasterCartonWidth.Valid,
		"master_carton_height":    p.MasterCartonHeight.Valid,
	}
	var set, missing []string
	for _, f := range masterCartonFields {
		if present[f] {
			set = append(set, f)
		} else {
			missing = append(missing, f)
		}
	}

	switch {
	case p.HasMasterCarton:
		for _, f := range missing {
			ve.Add(f, "is required when has_master_carton is set")
		}
	case len(missing) == 0:
		ve.Add("has_master_carton", "must be set when master carton fields are provided")
	case len(set) > 0:
		for _, f := range missing {
			ve.Add(f, "master carton fields must be provided together")
		}
	}

	if p.CasesPerMasterCarton != nil && *p.CasesPerMasterCarton < 1 {
		ve.Add("cases_per_master_carton", "must be at least 1")
	}
	nonNegativeOptional(ve, "master_carton_weight", p.MasterCartonWeight)
	nonNegativeOptional(ve, "master_carton_length", p.MasterCartonLength)
	nonNegativeOptional(ve, "master_carton_width", p.MasterCartonWidth)
	nonNegativeOptional(ve, "master_carton_height", p.MasterCartonHeight)
}

func nonNegative(ve *ValidationError, field string, v decimal.Decimal) {
	if v.IsNegative() {
		ve.Add(field, "must not be negative")
	}
}

func nonNegativeOptional(ve *ValidationError, field string, v decimal.NullDecimal) {
	if v.Valid && v.Decimal.IsNegative() && !ve.Has(field) {
		ve.Add(field, "must not be negative")
	}
}

// column shapes: dimensions and weights decimal(20,4), volumes decimal(38,12), temperatures decimal(8,2)
const (
	measureScale      = 4
	measureIntDigits  = 16
	volumeScale       = 12
	volumeIntDigits   = 26
	temperatureScale  = 2
	temperatureDigits = 6
)

// validateStorableScale rejects values their column would round or overflow.
func validateStorableScale(ve *ValidationError, p *Product) {
	measures := []struct {
		field string
		value decimal.NullDecimal
	}{
		{"unit_weight", decimal.NewNullDecimal(p.UnitWeight)},
		{"unit_length", decimal.NewNullDecimal(p.UnitLength)},
		{"unit_width", decimal.NewNullDecimal(p.UnitWidth)},
		{"unit_height", decimal.NewNullDecimal(p.UnitHeight)},
		{"case_weight", decimal.NewNullDecimal(p.CaseWeight)},
		{"case_length", decimal.NewNullDecimal(p.CaseLength)},
		{"case_width", decimal.NewNullDecimal(p.CaseWidth)},
		{"case_height", decimal.NewNullDecimal(p.CaseHeight)},
		{"master_carton_weight", p.MasterCartonWeight},
		{"master_carton_length", p.MasterCartonLength},
		{"master_carton_width", p.MasterCartonWidth},
		{"master_carton_height", p.MasterCartonHeight},
		{"pallet_weight", p.PalletWeight},
	}
	for _, m := range measures {
		storable(ve, m.field, m.value, measureIntDigits, measureScale)
	}
	storable(ve, "min_temperature", p.MinTemperature, temperatureDigits, temperatureScale)
	storable(ve, "max_temperature", p.MaxTemperature, temperatureDigits, temperatureScale)

	if ve.OrNil() != nil {
		return
	}
	storable(ve, "unit_volume", decimal.NewNullDecimal(p.UnitVolume), volumeIntDigits, volumeScale)
	storable(ve, "case_volume", decimal.NewNullDecimal(p.CaseVolume), volumeIntDigits, volumeScale)
	storable(ve, "master_carton_volume", p.MasterCartonVolume, volumeIntDigits, volumeScale)
}

func storable(ve *ValidationError, field string, v decimal.NullDecimal, intDigits int32, scale int32) {
	if !v.Valid || ve.Has(field) {
		return
	}
	if !v.Decimal.Equal(v.Decimal.Round(scale)) {
		ve.Add(field, "must have at most %d decimal places", scale)
		return
	}
	if v.Decimal.Abs().GreaterThanOrEqual(decimal.New(1, intDigits)) {
		ve.Add(field, "is too large")
	}
}
