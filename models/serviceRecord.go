package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ServiceRecord is one billable logistics event. It becomes read-only once InvoiceId is set.
type ServiceRecord struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CustomerId    int             `gorm:"not null;index:idx_record_customer_period,priority:1" json:"customer_id"`
	ServiceTypeId int             `gorm:"not null;index" json:"service_type_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	PerformedOn   time.Time       `gorm:"not null;index:idx_record_customer_period,priority:2" json:"performed_on"`
	Reference     string          `gorm:"size:100;index" json:"reference"`
	Notes         string          `gorm:"type:text" json:"notes"`
	InvoiceId     *int            `gorm:"index" json:"invoice_id"`
	InvoicedAt    *time.Time      `json:"invoiced_at"`
	CreatedBy     string          `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewServiceRecord struct {
	CustomerId    int             `json:"customer_id" validate:"required,gt=0"`
	ServiceTypeId int             `json:"service_type_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal `json:"quantity"`
	PerformedOn   time.Time       `json:"performed_on" validate:"required"`
	Reference     string          `json:"reference" validate:"max=100"`
	Notes         string          `json:"notes"`
}

func (r *ServiceRecord) IsInvoiced() bool {
	return r.InvoiceId != nil
}

func (input *NewServiceRecord) validate(tx *gorm.DB) error {
	if err := validationFromStruct(utils.ValidateStruct(input)); err != nil {
		return err
	}
	ve := &ValidationError{}
	if !input.Quantity.IsPositive() {
		ve.Add("quantity", "must be greater than zero")
	}
	customer, err := utils.FetchModel[Customer](tx, input.CustomerId)
	if err != nil {
		ve.Add("customer_id", "customer %d not found", input.CustomerId)
	} else if !customer.Active() && !config.AllowInactiveCustomerRecords() {
		return fmt.Errorf("%w: %s", ErrCustomerInactive, customer.Code)
	}
	if err := utils.ValidateResourceId[ServiceType](tx, input.ServiceTypeId); err != nil {
		ve.Add("service_type_id", "service type %d not found", input.ServiceTypeId)
	}
	return ve.OrNil()
}

// CreateServiceRecord(newRecord, actor) (ServiceRecord,error)
// UpdateServiceRecord(id, newRecord) (ServiceRecord,error)  refused once invoiced
// DeleteServiceRecord(id) (ServiceRecord,error)  refused once invoiced
// ListServiceRecords(filter) ([]ServiceRecord,error)

func CreateServiceRecord(ctx context.Context, db *gorm.DB, input *NewServiceRecord, actor string) (*ServiceRecord, error) {
	input.PerformedOn = utils.DateOnly(input.PerformedOn)
	input.Reference = strings.TrimSpace(input.Reference)
	if err := input.validate(db.WithContext(ctx)); err != nil {
		return nil, err
	}

	record := ServiceRecord{
		CustomerId:    input.CustomerId,
		ServiceTypeId: input.ServiceTypeId,
		Quantity:      input.Quantity,
		PerformedOn:   input.PerformedOn,
		Reference:     input.Reference,
		Notes:         input.Notes,
		CreatedBy:     actor,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// fetchUninvoicedForUpdate locks the record and fails with ErrServiceRecordInvoiced if it has been billed.
func fetchUninvoicedForUpdate(tx *gorm.DB, id int) (*ServiceRecord, error) {
	record, err := utils.FetchModelForUpdate[ServiceRecord](tx, id)
	if err != nil {
		return nil, err
	}
	if record.IsInvoiced() {
		return nil, fmt.Errorf("%w: record %d is on invoice %d", ErrServiceRecordInvoiced, id, *record.InvoiceId)
	}
	return record, nil
}

func UpdateServiceRecord(ctx context.Context, db *gorm.DB, id int, input *NewServiceRecord) (*ServiceRecord, error) {
	input.PerformedOn = utils.DateOnly(input.PerformedOn)
	input.Reference = strings.TrimSpace(input.Reference)

	tx := db.WithContext(ctx).Begin()
	record, err := fetchUninvoicedForUpdate(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := input.validate(tx); err != nil {
		tx.Rollback()
		return nil, err
	}

	record.CustomerId = input.CustomerId
	record.ServiceTypeId = input.ServiceTypeId
	record.Quantity = input.Quantity
	record.PerformedOn = input.PerformedOn
	record.Reference = input.Reference
	record.Notes = input.Notes

	// guarded so a concurrent invoice run cannot be overwritten
	result := tx.Model(record).Where("invoice_id IS NULL").
		Select("customer_id", "service_type_id", "quantity", "performed_on", "reference", "notes").
		Updates(record)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected != 1 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: record %d", ErrServiceRecordInvoiced, id)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return record, nil
}

func DeleteServiceRecord(ctx context.Context, db *gorm.DB, id int) (*ServiceRecord, error) {
	tx := db.WithContext(ctx).Begin()
	record, err := fetchUninvoicedForUpdate(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	result := tx.Where("invoice_id IS NULL").Delete(record)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected != 1 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: record %d", ErrServiceRecordInvoiced, id)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return record, nil
}

func GetServiceRecord(ctx context.Context, db *gorm.DB, id int) (*ServiceRecord, error) {
	return utils.FetchModel[ServiceRecord](db.WithContext(ctx), id)
}

type ServiceRecordFilter struct {
	CustomerId    int
	ServiceTypeId int
	From          *time.Time
	To            *time.Time
	Invoiced      *bool
	InvoiceId     int
}

func ListServiceRecords(ctx context.Context, db *gorm.DB, filter ServiceRecordFilter) ([]*ServiceRecord, error) {
	var results []*ServiceRecord
	q := db.WithContext(ctx).Order("performed_on, id")
	if filter.CustomerId > 0 {
		q = q.Where("customer_id = ?", filter.CustomerId)
	}
	if filter.ServiceTypeId > 0 {
		q = q.Where("service_type_id = ?", filter.ServiceTypeId)
	}
	if filter.From != nil {
		q = q.Where("performed_on >= ?", utils.DateOnly(*filter.From))
	}
	if filter.To != nil {
		q = q.Where("performed_on <= ?", utils.DateOnly(*filter.To))
	}
	if filter.Invoiced != nil {
		if *filter.Invoiced {
			q = q.Where("invoice_id IS NOT NULL")
		} else {
			q = q.Where("invoice_id IS NULL")
		}
	}
	if filter.InvoiceId > 0 {
		q = q.Where("invoice_id = ?", filter.InvoiceId)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
