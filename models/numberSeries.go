package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const InvoiceNumberSeries = "invoice"

// TransactionNumberSeries is a named counter. Numbers are taken under a row lock inside the
// caller's transaction, so a rolled back document gives its number back.
type TransactionNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:40;not null;uniqueIndex" json:"name"`
	Prefix     string    `gorm:"size:20;not null" json:"prefix"`
	Padding    int       `gorm:"not null;default:6" json:"padding"`
	NextNumber int64     `gorm:"not null;default:1" json:"next_number"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func SeedNumberSeries(tx *gorm.DB) error {
	series := TransactionNumberSeries{Name: InvoiceNumberSeries, Prefix: "INV-", Padding: 6, NextNumber: 1}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&series).Error
}

// NextNumber allocates the next formatted number of series. tx must be a transaction.
func NextNumber(tx *gorm.DB, name string) (string, error) {
	var series TransactionNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", name).First(&series).Error
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("number series %q is not configured", name)
		}
		return "", err
	}

	number := fmt.Sprintf("%s%0*d", series.Prefix, series.Padding, series.NextNumber)
	if err := tx.Model(&series).Update("next_number", gorm.Expr("next_number + 1")).Error; err != nil {
		return "", err
	}
	return number, nil
}
