package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceRate overrides a service type's base rate for one customer over an inclusive date range.
// An open EffectiveTo means the rate runs until replaced.
type ServiceRate struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CustomerId    int             `gorm:"not null;index:idx_rate_customer_service,priority:1" json:"customer_id"`
	ServiceTypeId int             `gorm:"not null;index:idx_rate_customer_service,priority:2" json:"service_type_id"`
	Rate          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate"`
	EffectiveFrom time.Time       `gorm:"not null" json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewServiceRate struct {
	CustomerId    int             `json:"customer_id" validate:"required,gt=0"`
	ServiceTypeId int             `json:"service_type_id" validate:"required,gt=0"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom time.Time       `json:"effective_from" validate:"required"`
	EffectiveTo   *time.Time      `json:"effective_to"`
	Notes         string          `json:"notes"`
}

func (r *ServiceRate) Active() bool {
	return utils.DereferencePtr(r.IsActive, true)
}

// Covers reports whether the rate's inclusive range contains the calendar day of asOf.
func (r *ServiceRate) Covers(asOf time.Time) bool {
	day := utils.DateOnly(asOf)
	if day.Before(utils.DateOnly(r.EffectiveFrom)) {
		return false
	}
	return r.EffectiveTo == nil || !day.After(utils.DateOnly(*r.EffectiveTo))
}

// Overlaps reports whether two rate ranges share at least one day.
func (r *ServiceRate) Overlaps(other *ServiceRate) bool {
	if r.EffectiveTo != nil && utils.DateOnly(other.EffectiveFrom).After(utils.DateOnly(*r.EffectiveTo)) {
		return false
	}
	if other.EffectiveTo != nil && utils.DateOnly(r.EffectiveFrom).After(utils.DateOnly(*other.EffectiveTo)) {
		return false
	}
	return true
}

func (input *NewServiceRate) normalize() {
	input.EffectiveFrom = utils.DateOnly(input.EffectiveFrom)
	if input.EffectiveTo != nil {
		to := utils.DateOnly(*input.EffectiveTo)
		input.EffectiveTo = &to
	}
}

func (input *NewServiceRate) validate(tx *gorm.DB) error {
	if err := validationFromStruct(utils.ValidateStruct(input)); err != nil {
		return err
	}
	ve := &ValidationError{}
	if input.Rate.IsNegative() {
		ve.Add("rate", "must not be negative")
	}
	if input.EffectiveTo != nil && input.EffectiveTo.Before(input.EffectiveFrom) {
		ve.Add("effective_to", "must not be before effective_from")
	}
	if err := utils.ValidateResourceId[Customer](tx, input.CustomerId); err != nil {
		ve.Add("customer_id", "customer %d not found", input.CustomerId)
	}
	if err := utils.ValidateResourceId[ServiceType](tx, input.ServiceTypeId); err != nil {
		ve.Add("service_type_id", "service type %d not found", input.ServiceTypeId)
	}
	return ve.OrNil()
}

// lockCustomer takes the customer row lock that serializes rate writers of one customer.
// A pair with no rates yet has nothing else to lock.
func lockCustomer(tx *gorm.DB, customerId int) error {
	_, err := utils.FetchModelForUpdate[Customer](tx, customerId)
	return err
}

// lockActiveRates returns the active rates of a (customer, service type) pair under FOR UPDATE.
// Callers hold the customer lock.
func lockActiveRates(tx *gorm.DB, customerId, serviceTypeId int) ([]*ServiceRate, error) {
	var rates []*ServiceRate
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND service_type_id = ? AND is_active = ?", customerId, serviceTypeId, true).
		Order("effective_from, id").
		Find(&rates).Error
	return rates, err
}

func checkNoOverlap(candidate *ServiceRate, existing []*ServiceRate) error {
	var ids []int
	for _, r := range existing {
		if r.ID == candidate.ID {
			continue
		}
		if candidate.Overlaps(r) {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) > 0 {
		return fmt.Errorf("%w: customer %d service type %d conflicts with rate ids %v",
			ErrOverlappingRates, candidate.CustomerId, candidate.ServiceTypeId, ids)
	}
	return nil
}

// CreateServiceRate stores a customer override, refused with ErrOverlappingRates when its range
// shares a day with another active rate of the same pair.
func CreateServiceRate(ctx context.Context, db *gorm.DB, input *NewServiceRate) (*ServiceRate, error) {
	input.normalize()
	tx := db.WithContext(ctx).Begin()
	if err := input.validate(tx); err != nil {
		tx.Rollback()
		return nil, err
	}

	rate := ServiceRate{
		CustomerId:    input.CustomerId,
		ServiceTypeId: input.ServiceTypeId,
		Rate:          input.Rate,
		EffectiveFrom: input.EffectiveFrom,
		EffectiveTo:   input.EffectiveTo,
		IsActive:      utils.NewTrue(),
		Notes:         input.Notes,
	}

	if err := lockCustomer(tx, input.CustomerId); err != nil {
		tx.Rollback()
		return nil, err
	}
	existing, err := lockActiveRates(tx, input.CustomerId, input.ServiceTypeId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkNoOverlap(&rate, existing); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Create(&rate).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

type ServiceRateChange struct {
	Rate        *decimal.Decimal `json:"rate"`
	EffectiveTo *time.Time       `json:"effective_to"`
	ClearEnd    bool             `json:"clear_effective_to"`
	Notes       *string          `json:"notes"`
}

// UpdateServiceRate changes the price or end date of a rate. Closing a range early is the usual way
// to hand over to a new rate; widening it is checked for overlap again.
func UpdateServiceRate(ctx context.Context, db *gorm.DB, id int, change *ServiceRateChange) (*ServiceRate, error) {
	tx := db.WithContext(ctx).Begin()
	current, err := utils.FetchModel[ServiceRate](tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := lockCustomer(tx, current.CustomerId); err != nil {
		tx.Rollback()
		return nil, err
	}
	rate, err := utils.FetchModelForUpdate[ServiceRate](tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if change.Rate != nil {
		if change.Rate.IsNegative() {
			tx.Rollback()
			return nil, NewValidationError("rate", "must not be negative")
		}
		rate.Rate = *change.Rate
	}
	if change.ClearEnd {
		rate.EffectiveTo = nil
	} else if change.EffectiveTo != nil {
		to := utils.DateOnly(*change.EffectiveTo)
		if to.Before(rate.EffectiveFrom) {
			tx.Rollback()
			return nil, NewValidationError("effective_to", "must not be before effective_from")
		}
		rate.EffectiveTo = &to
	}
	if change.Notes != nil {
		rate.Notes = *change.Notes
	}

	if rate.Active() {
		existing, err := lockActiveRates(tx, rate.CustomerId, rate.ServiceTypeId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := checkNoOverlap(rate, existing); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Save(rate).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return rate, nil
}

func DeactivateServiceRate(ctx context.Context, db *gorm.DB, id int) (*ServiceRate, error) {
	rate, err := utils.FetchModel[ServiceRate](db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(rate).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	rate.IsActive = utils.NewFalse()
	return rate, nil
}

func GetServiceRate(ctx context.Context, db *gorm.DB, id int) (*ServiceRate, error) {
	return utils.FetchModel[ServiceRate](db.WithContext(ctx), id)
}

func ListServiceRates(ctx context.Context, db *gorm.DB, customerId int, serviceTypeId int) ([]*ServiceRate, error) {
	var results []*ServiceRate
	q := db.WithContext(ctx).Where("customer_id = ?", customerId)
	if serviceTypeId > 0 {
		q = q.Where("service_type_id = ?", serviceTypeId)
	}
	if err := q.Order("service_type_id, effective_from, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
