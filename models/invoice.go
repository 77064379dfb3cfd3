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

type Invoice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceNumber string          `gorm:"size:30;not null;uniqueIndex" json:"invoice_number"`
	CustomerId    int             `gorm:"not null;index" json:"customer_id"`
	PeriodStart   time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time       `gorm:"not null" json:"period_end"`
	IssueDate     time.Time       `gorm:"not null" json:"issue_date"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	Status        InvoiceStatus   `gorm:"size:20;not null;index;default:'draft'" json:"status"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Lines         []InvoiceLine   `gorm:"foreignKey:InvoiceId" json:"lines"`
	CreatedBy     string          `gorm:"size:100" json:"created_by"`
	SentAt        *time.Time      `json:"sent_at"`
	PaidAt        *time.Time      `json:"paid_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Cancelling an invoice does not release its service records; they stay attached for audit.

// VerifyTotal checks that the stored total equals the sum of the line amounts.
func (inv *Invoice) VerifyTotal() error {
	sum := SumLineAmounts(inv.Lines)
	if !sum.Equal(inv.TotalAmount) {
		return fmt.Errorf("invoice %s total %s does not equal line sum %s", inv.InvoiceNumber, inv.TotalAmount, sum)
	}
	return nil
}

// DueDateFor is the issue day plus the customer's payment terms.
func DueDateFor(issueDate time.Time, paymentTermsDays int) time.Time {
	return utils.DateOnly(issueDate).AddDate(0, 0, paymentTermsDays)
}

type InvoiceStatusEvent struct {
	InvoiceId     int           `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	From          InvoiceStatus `json:"from"`
	To            InvoiceStatus `json:"to"`
	Actor         string        `json:"actor"`
}

// UpdateInvoiceStatus(id, status, actor) (Invoice,error)
// GetInvoice(id) (Invoice,error)
// ListInvoices(filter) ([]Invoice,error)
// MarkOverdueInvoices(asOf) ([]Invoice,error)

func UpdateInvoiceStatus(ctx context.Context, db *gorm.DB, id int, next InvoiceStatus, actor string) (*Invoice, error) {
	if !next.IsValid() {
		return nil, NewValidationError("status", "unknown status %q", next)
	}

	tx := db.WithContext(ctx).Begin()
	invoice, err := utils.FetchModelForUpdate[Invoice](tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if invoice.Status == next {
		tx.Rollback()
		return GetInvoice(ctx, db, id)
	}
	if err := transitionInvoiceTx(tx, invoice, next, actor); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetInvoice(ctx, db, id)
}

func transitionInvoiceTx(tx *gorm.DB, invoice *Invoice, next InvoiceStatus, actor string) error {
	if !invoice.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, invoice.Status, next)
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{"status": next}
	switch next {
	case InvoiceStatusSent:
		updates["sent_at"] = now
	case InvoiceStatusPaid:
		updates["paid_at"] = now
	case InvoiceStatusCancelled:
		updates["cancelled_at"] = now
	}
	// guarded on the old status so two concurrent transitions cannot both apply
	result := tx.Model(&Invoice{}).Where("id = ? AND status = ?", invoice.ID, invoice.Status).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("%w: invoice %d changed concurrently", ErrInvalidStatusTransition, invoice.ID)
	}

	event := InvoiceStatusEvent{
		InvoiceId:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		From:          invoice.Status,
		To:            next,
		Actor:         actor,
	}
	invoice.Status = next
	return PublishEvent(tx, EventInvoiceStatusChanged, OutboxReferenceInvoice, invoice.ID, event)
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(q *gorm.DB) *gorm.DB {
		return q.Order("line_no")
	})
}

func GetInvoice(ctx context.Context, db *gorm.DB, id int) (*Invoice, error) {
	var invoice Invoice
	if err := preloadLines(db.WithContext(ctx)).First(&invoice, id).Error; err != nil {
		if isNotFound(err) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

type InvoiceFilter struct {
	CustomerId int
	Status     InvoiceStatus
	IssuedFrom *time.Time
	IssuedTo   *time.Time
}

func ListInvoices(ctx context.Context, db *gorm.DB, filter InvoiceFilter) ([]*Invoice, error) {
	var results []*Invoice
	q := preloadLines(db.WithContext(ctx)).Order("issue_date DESC, id DESC")
	if filter.CustomerId > 0 {
		q = q.Where("customer_id = ?", filter.CustomerId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.IssuedFrom != nil {
		q = q.Where("issue_date >= ?", utils.DateOnly(*filter.IssuedFrom))
	}
	if filter.IssuedTo != nil {
		q = q.Where("issue_date <= ?", utils.DateOnly(*filter.IssuedTo))
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MarkOverdueInvoices moves every sent invoice whose due date is before asOf to overdue.
func MarkOverdueInvoices(ctx context.Context, db *gorm.DB, asOf time.Time, actor string) ([]*Invoice, error) {
	tx := db.WithContext(ctx).Begin()
	var due []*Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND due_date < ?", InvoiceStatusSent, utils.DateOnly(asOf)).
		Order("id").
		Find(&due).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, invoice := range due {
		if err := transitionInvoiceTx(tx, invoice, InvoiceStatusOverdue, actor); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return due, nil
}
