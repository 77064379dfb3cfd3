package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// CalculateVolume returns length × width × height with no rounding.
func CalculateVolume(length, width, height decimal.Decimal) decimal.Decimal {
	return length.Mul(width).Mul(height)
}

// calculateOptionalVolume leaves the volume unset unless all three dimensions are present.
func calculateOptionalVolume(length, width, height decimal.NullDecimal) decimal.NullDecimal {
	if !length.Valid || !width.Valid || !height.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: CalculateVolume(length.Decimal, width.Decimal, height.Decimal), Valid: true}
}

// DeriveVolumes recomputes the unit, case and master carton volumes from their dimensions.
// It must run before every save of a product; calling it twice is a no-op.
func (p *Product) DeriveVolumes() {
	p.UnitVolume = CalculateVolume(p.UnitLength, p.UnitWidth, p.UnitHeight)
	p.CaseVolume = CalculateVolume(p.CaseLength, p.CaseWidth, p.CaseHeight)
	p.MasterCartonVolume = calculateOptionalVolume(p.MasterCartonLength, p.MasterCartonWidth, p.MasterCartonHeight)
}

// UnitsPerPallet is the number of eaches on a full pallet.
func (p *Product) UnitsPerPallet() int64 {
	return int64(p.UnitsPerCase) * int64(p.CasesPerPallet)
}

// LedgerQuantity is a quantity entered at any mix of granularities.
type LedgerQuantity struct {
	Units   int64 `json:"units"`
	Cases   int64 `json:"cases"`
	Pallets int64 `json:"pallets"`
}

func (q LedgerQuantity) IsNegative() bool {
	return q.Units < 0 || q.Cases < 0 || q.Pallets < 0
}

func (q LedgerQuantity) IsZero() bool {
	return q.Units == 0 && q.Cases == 0 && q.Pallets == 0
}

// ToUnits converts q to eaches through the product's case and pallet multipliers.
// ok is false when q is negative or the each count does not fit in an int64.
func (p *Product) ToUnits(q LedgerQuantity) (units int64, ok bool) {
	if q.IsNegative() || p.UnitsPerCase < 0 || p.CasesPerPallet < 0 {
		return 0, false
	}
	caseUnits, ok := mulUnits(q.Cases, int64(p.UnitsPerCase))
	if !ok {
		return 0, false
	}
	palletCases, ok := mulUnits(q.Pallets, int64(p.CasesPerPallet))
	if !ok {
		return 0, false
	}
	palletUnits, ok := mulUnits(palletCases, int64(p.UnitsPerCase))
	if !ok {
		return 0, false
	}
	if units, ok = addUnits(q.Units, caseUnits); !ok {
		return 0, false
	}
	return addUnits(units, palletUnits)
}

// mulUnits and addUnits work on non-negative counts and report int64 overflow.
func mulUnits(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func addUnits(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// FullCasesAndPallets splits an each count into whole case and whole pallet equivalents.
func (p *Product) FullCasesAndPallets(units int64) (cases int64, pallets int64) {
	if p.UnitsPerCase > 0 {
		cases = units / int64(p.UnitsPerCase)
	}
	if upp := p.UnitsPerPallet(); upp > 0 {
		pallets = units / upp
	}
	return
}

// PalletPositions is the number of pallet slots units occupies, counting a partial pallet as one.
func (p *Product) PalletPositions(units int64) int64 {
	upp := p.UnitsPerPallet()
	if units <= 0 || upp <= 0 {
		return 0
	}
	return (units + upp - 1) / upp
}
