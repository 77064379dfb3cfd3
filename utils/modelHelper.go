package utils

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](tx *gorm.DB, id int, associations ...string) (*T, error) {
	q := tx
	for _, field := range associations {
		q = q.Preload(field)
	}
	var result T
	if err := q.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// FetchModelForUpdate loads the row with a FOR UPDATE lock; callers must be inside a transaction.
func FetchModelForUpdate[T any](tx *gorm.DB, id int) (*T, error) {
	return FetchModel[T](tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// fetch all models matching condition, ordered by id
func FetchAllModelsWhere[T any](tx *gorm.DB, condition string, values ...interface{}) ([]*T, error) {
	var results []*T
	q := tx.Order("id")
	if condition != "" {
		q = q.Where(condition, values...)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
