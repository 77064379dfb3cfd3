package utils

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// MySQL reports 1062; the sqlite and postgres drivers are matched on message text.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	msg := err.Error()
	return containsAny(msg, "UNIQUE constraint failed", "duplicate key value violates unique constraint")
}
