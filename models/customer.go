package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/utils"
	"gorm.io/gorm"
)

type Customer struct {
	ID               int          `gorm:"primary_key" json:"id"`
	Code             string       `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name             string       `gorm:"size:100;not null" json:"name"`
	ContactName      string       `gorm:"size:100" json:"contact_name"`
	Email            string       `gorm:"size:100" json:"email"`
	Phone            string       `gorm:"size:20" json:"phone"`
	Address          string       `gorm:"type:text" json:"address"`
	PaymentTermsDays int          `gorm:"not null;default:30" json:"payment_terms_days"`
	BillingCycle     BillingCycle `gorm:"size:20;not null;default:'monthly'" json:"billing_cycle"`
	Notes            string       `gorm:"type:text" json:"notes"`
	IsActive         *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Code             string       `json:"code" validate:"required,max=20"`
	Name             string       `json:"name" validate:"required,max=100"`
	ContactName      string       `json:"contact_name" validate:"max=100"`
	Email            string       `json:"email" validate:"omitempty,email,max=100"`
	Phone            string       `json:"phone" validate:"max=20"`
	Address          string       `json:"address"`
	PaymentTermsDays *int         `json:"payment_terms_days" validate:"omitempty,min=0,max=365"`
	BillingCycle     BillingCycle `json:"billing_cycle" validate:"omitempty,oneof=weekly monthly quarterly"`
	Notes            string       `json:"notes"`
}

// Customers are deactivated, not deleted, once they have been invoiced.

// CreateCustomer(newCustomer) (Customer,error)
// UpdateCustomer(id, newCustomer) (Customer,error)
// DeleteCustomer(id) (Customer,error)  refused with ErrCustomerHasInvoices
// GetCustomer(id) (Customer,error)
// ListCustomers(filter) ([]Customer,error)
// ToggleActiveCustomer(id, isActive) (Customer,error)

func (c *Customer) Active() bool {
	return utils.DereferencePtr(c.IsActive, true)
}

func (input *NewCustomer) normalize() {
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	if input.BillingCycle == "" {
		input.BillingCycle = BillingCycleMonthly
	}
}

func (input *NewCustomer) validate(tx *gorm.DB, id int) error {
	if err := validationFromStruct(utils.ValidateStruct(input)); err != nil {
		return err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, config.PhoneDefaultRegion()); err != nil {
			return NewValidationError("phone", "%s", err.Error())
		}
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Customer](tx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Customer](tx, "code", input.Code, id); err != nil {
		return errors.Join(ErrDuplicate, err)
	}
	return nil
}

func CreateCustomer(ctx context.Context, db *gorm.DB, input *NewCustomer) (*Customer, error) {
	input.normalize()
	if err := input.validate(db.WithContext(ctx), 0); err != nil {
		return nil, err
	}

	customer := Customer{
		Code:             input.Code,
		Name:             input.Name,
		ContactName:      input.ContactName,
		Email:            input.Email,
		Address:          input.Address,
		PaymentTermsDays: utils.DereferencePtr(input.PaymentTermsDays, 30),
		BillingCycle:     input.BillingCycle,
		Notes:            input.Notes,
		IsActive:         utils.NewTrue(),
	}
	if input.Phone != "" {
		customer.Phone = utils.FormatPhoneNumber(input.Phone, config.PhoneDefaultRegion())
	}

	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, mapDuplicateErr(err, "customer code "+customer.Code)
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, db *gorm.DB, id int, input *NewCustomer) (*Customer, error) {
	input.normalize()
	tx := db.WithContext(ctx).Begin()
	if err := input.validate(tx, id); err != nil {
		tx.Rollback()
		return nil, err
	}

	customer, err := utils.FetchModelForUpdate[Customer](tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	customer.Code = input.Code
	customer.Name = input.Name
	customer.ContactName = input.ContactName
	customer.Email = input.Email
	customer.Phone = ""
	if input.Phone != "" {
		customer.Phone = utils.FormatPhoneNumber(input.Phone, config.PhoneDefaultRegion())
	}
	customer.Address = input.Address
	customer.PaymentTermsDays = utils.DereferencePtr(input.PaymentTermsDays, customer.PaymentTermsDays)
	customer.BillingCycle = input.BillingCycle
	customer.Notes = input.Notes

	if err := tx.Save(customer).Error; err != nil {
		tx.Rollback()
		return nil, mapDuplicateErr(err, "customer code "+customer.Code)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return customer, nil
}

// DeleteCustomer hard-deletes a customer that was never invoiced, together with its products,
// their inventory records, its rates and its uninvoiced service records.
func DeleteCustomer(ctx context.Context, db *gorm.DB, id int) (*Customer, error) {
	tx := db.WithContext(ctx).Begin()
	customer, err := utils.FetchModelForUpdate[Customer](tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Invoice](tx, "customer_id = ?", id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if count > 0 {
		tx.Rollback()
		return nil, ErrCustomerHasInvoices
	}

	var productIds []int
	if err := tx.Model(&Product{}).Where("customer_id = ?", id).Pluck("id", &productIds).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := deleteProductsTx(tx, productIds); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("customer_id = ?", id).Delete(&ServiceRate{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("customer_id = ? AND invoice_id IS NULL", id).Delete(&ServiceRecord{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(customer).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return customer, nil
}

func GetCustomer(ctx context.Context, db *gorm.DB, id int) (*Customer, error) {
	return utils.FetchModel[Customer](db.WithContext(ctx), id)
}

// GetCustomers returns customers keyed by id; missing ids are simply absent.
func GetCustomers(ctx context.Context, db *gorm.DB, ids []int) (map[int]*Customer, error) {
	var customers []*Customer
	if err := db.WithContext(ctx).Where("id IN ?", utils.UniqueSlice(ids)).Find(&customers).Error; err != nil {
		return nil, err
	}
	result := make(map[int]*Customer, len(customers))
	for _, c := range customers {
		result[c.ID] = c
	}
	return result, nil
}

type CustomerFilter struct {
	Name         string
	Code         string
	BillingCycle BillingCycle
	IsActive     *bool
}

func ListCustomers(ctx context.Context, db *gorm.DB, filter CustomerFilter) ([]*Customer, error) {
	var results []*Customer
	q := db.WithContext(ctx).Order("code")
	if filter.Name != "" {
		q = q.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Code != "" {
		q = q.Where("code = ?", strings.ToUpper(filter.Code))
	}
	if filter.BillingCycle != "" {
		q = q.Where("billing_cycle = ?", filter.BillingCycle)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveCustomer(ctx context.Context, db *gorm.DB, id int, isActive bool) (*Customer, error) {
	customer, err := GetCustomer(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(customer).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	customer.IsActive = &isActive
	return customer, nil
}
