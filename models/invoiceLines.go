package models

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type InvoiceLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceId     int             `gorm:"not null;index" json:"invoice_id"`
	LineNo        int             `gorm:"not null" json:"line_no"`
	ServiceTypeId int             `gorm:"not null" json:"service_type_id"`
	Description   string          `gorm:"size:255" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitRate      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_rate"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	RateSource    RateSource      `gorm:"size:20" json:"rate_source"`
	ServiceRateId *int            `json:"service_rate_id"`
	RecordCount   int             `gorm:"not null;default:0" json:"record_count"`
}

type lineKey struct {
	serviceTypeId int
	rate          string
	serviceRateId int
}

// BuildInvoiceLines groups records by service type and the rate in force on each record's date,
// so a rate change inside the period produces one line per rate. Each line amount is
// quantity × rate rounded half-up to cents; the total is the sum of the rounded lines.
// If any record cannot be priced nothing is returned and every failure is reported.
func BuildInvoiceLines(records []*ServiceRecord, resolve RateFunc) ([]InvoiceLine, decimal.Decimal, error) {
	groups := map[lineKey]*InvoiceLine{}
	var errs []error

	for _, r := range records {
		quote, err := resolve(r.ServiceTypeId, r.PerformedOn)
		if err != nil {
			errs = append(errs, fmt.Errorf("service record %d: %w", r.ID, err))
			continue
		}
		k := lineKey{serviceTypeId: r.ServiceTypeId, rate: quote.Rate.String()}
		if quote.ServiceRateId != nil {
			k.serviceRateId = *quote.ServiceRateId
		}
		line, ok := groups[k]
		if !ok {
			line = &InvoiceLine{
				ServiceTypeId: r.ServiceTypeId,
				Quantity:      decimal.Zero,
				UnitRate:      quote.Rate,
				RateSource:    quote.Source,
				ServiceRateId: quote.ServiceRateId,
			}
			groups[k] = line
		}
		line.Quantity = line.Quantity.Add(r.Quantity)
		line.RecordCount++
	}
	if len(errs) > 0 {
		return nil, decimal.Zero, errors.Join(errs...)
	}

	lines := make([]InvoiceLine, 0, len(groups))
	for _, l := range groups {
		lines = append(lines, *l)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ServiceTypeId != lines[j].ServiceTypeId {
			return lines[i].ServiceTypeId < lines[j].ServiceTypeId
		}
		if !lines[i].UnitRate.Equal(lines[j].UnitRate) {
			return lines[i].UnitRate.LessThan(lines[j].UnitRate)
		}
		return derefId(lines[i].ServiceRateId) < derefId(lines[j].ServiceRateId)
	})

	total := decimal.Zero
	for i := range lines {
		lines[i].LineNo = i + 1
		lines[i].Amount = lines[i].Quantity.Mul(lines[i].UnitRate).Round(2)
		total = total.Add(lines[i].Amount)
	}
	return lines, total, nil
}

// SumLineAmounts is the invoice total implied by lines.
func SumLineAmounts(lines []InvoiceLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

func derefId(id *int) int {
	if id == nil {
		return 0
	}
	return *id
}
