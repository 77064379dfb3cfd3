package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RateQuote is the single unit price that applies to one service type on one day.
type RateQuote struct {
	ServiceTypeId int             `json:"service_type_id"`
	Rate          decimal.Decimal `json:"rate"`
	Source        RateSource      `json:"source"`
	ServiceRateId *int            `json:"service_rate_id,omitempty"`
}

// RateFunc resolves the rate of a service type at a date for a fixed customer.
type RateFunc func(serviceTypeId int, asOf time.Time) (*RateQuote, error)

// SelectRate picks the rate from already loaded candidates. Candidates may include inactive or
// out-of-range rates; only active rates covering asOf count. Two covering rates are reported,
// never tie-broken.
func SelectRate(st *ServiceType, candidates []*ServiceRate, asOf time.Time) (*RateQuote, error) {
	var covering []*ServiceRate
	for _, r := range candidates {
		if r.ServiceTypeId != st.ID || !r.Active() || !r.Covers(asOf) {
			continue
		}
		covering = append(covering, r)
	}

	switch {
	case len(covering) > 1:
		ids := make([]int, 0, len(covering))
		for _, r := range covering {
			ids = append(ids, r.ID)
		}
		return nil, fmt.Errorf("%w: service type %s on %s matches rate ids %v",
			ErrOverlappingRates, st.Code, asOf.Format("2006-01-02"), ids)
	case len(covering) == 1:
		id := covering[0].ID
		return &RateQuote{ServiceTypeId: st.ID, Rate: covering[0].Rate, Source: RateSourceCustomer, ServiceRateId: &id}, nil
	}

	if st.IsCustomPricing || !st.BaseRate.Valid {
		return nil, fmt.Errorf("%w: service type %s has no customer rate on %s",
			ErrNoApplicableRate, st.Code, asOf.Format("2006-01-02"))
	}
	return &RateQuote{ServiceTypeId: st.ID, Rate: st.BaseRate.Decimal, Source: RateSourceBase}, nil
}

// ResolveRate returns the unit price for customerId and serviceTypeId on the calendar day of asOf:
// the customer's active override, else the base rate, else ErrNoApplicableRate.
func ResolveRate(tx *gorm.DB, customerId int, serviceTypeId int, asOf time.Time) (*RateQuote, error) {
	st, err := GetServiceType(tx, serviceTypeId)
	if err != nil {
		return nil, err
	}

	day := utils.DateOnly(asOf)
	var candidates []*ServiceRate
	err = tx.Where("customer_id = ? AND service_type_id = ? AND is_active = ?", customerId, serviceTypeId, true).
		Where("effective_from <= ?", day).
		Where("(effective_to IS NULL OR effective_to >= ?)", day).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	return SelectRate(st, candidates, day)
}

// NewRateFunc binds ResolveRate to one customer and memoizes per service type and day.
func NewRateFunc(tx *gorm.DB, customerId int) RateFunc {
	type key struct {
		serviceTypeId int
		day           time.Time
	}
	memo := map[key]*RateQuote{}
	return func(serviceTypeId int, asOf time.Time) (*RateQuote, error) {
		k := key{serviceTypeId, utils.DateOnly(asOf)}
		if q, ok := memo[k]; ok {
			return q, nil
		}
		q, err := ResolveRate(tx, customerId, serviceTypeId, asOf)
		if err != nil {
			return nil, err
		}
		memo[k] = q
		return q, nil
	}
}
