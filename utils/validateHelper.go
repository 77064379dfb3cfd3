package utils

import (
	"errors"
	"reflect"

	"gorm.io/gorm"
)

// check if id exists, return RecordNotFound Error
func ValidateResourceId[T any](tx *gorm.DB, id interface{}) error {
	count, err := ResourceCountWhere[T](tx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// check if ALL ids exist, return RecordNotFound Error
func ValidateResourcesId[M any, ID comparable](tx *gorm.DB, ids []ID) error {
	unqIds := UniqueSlice(ids)
	if len(unqIds) == 0 {
		return nil
	}

	count, err := ResourceCountWhere[M](tx, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique fails with "duplicate <column>" when another row already holds value.
// scope narrows the check, e.g. "customer_id = ?" for per-customer uniqueness.
func ValidateUnique[T any](tx *gorm.DB, column string, value interface{}, exceptId interface{}, scope ...interface{}) error {
	var model T
	q := tx.Model(&model).Where(column+" = ?", value)
	if exceptId != nil && !reflect.ValueOf(exceptId).IsZero() {
		q = q.Where("NOT id = ?", exceptId)
	}
	if len(scope) > 0 {
		if cond, ok := scope[0].(string); ok {
			q = q.Where(cond, scope[1:]...)
		}
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records WHERE $condition
func ResourceCountWhere[T any](tx *gorm.DB, condition string, value ...interface{}) (int64, error) {
	var model T
	var count int64
	if err := tx.Model(&model).Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
