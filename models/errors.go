package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/threepl_backend/utils"
)

var (
	ErrValidation               = errors.New("validation failed")
	ErrNoApplicableRate         = errors.New("no applicable rate")
	ErrOverlappingRates         = errors.New("overlapping active rates")
	ErrInsufficientInventory    = errors.New("insufficient inventory")
	ErrLocationCapacityExceeded = errors.New("location capacity exceeded")
	ErrDuplicate                = errors.New("duplicate record")
	ErrServiceRecordInvoiced    = errors.New("service record already invoiced")
	ErrNothingToInvoice         = errors.New("no uninvoiced service records in period")
	ErrInvalidStatusTransition  = errors.New("invalid invoice status transition")
	ErrCustomerHasInvoices      = errors.New("customer has invoices")
	ErrCustomerInactive         = errors.New("customer is inactive")
	ErrImmutableTransaction     = errors.New("inventory transactions are append-only")

	ErrRecordNotFound = utils.ErrorRecordNotFound
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level problems. errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Add(field string, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Has reports whether field already failed.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns nil when nothing was added.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AsMap is the field -> message view the API returns.
func (e *ValidationError) AsMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := m[f.Field]; !ok {
			m[f.Field] = f.Message
		}
	}
	return m
}

func NewValidationError(field string, format string, args ...any) *ValidationError {
	ve := &ValidationError{}
	ve.Add(field, format, args...)
	return ve
}

// validationFromStruct converts validator tag failures into a ValidationError.
func validationFromStruct(err error) error {
	if err == nil {
		return nil
	}
	fields := utils.ProcessValidationErrors(err)
	if len(fields) == 0 {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ve := &ValidationError{}
	for _, k := range keys {
		ve.Add(k, "failed %s", fields[k])
	}
	return ve
}

// mapDuplicateErr turns a unique-index violation into ErrDuplicate.
func mapDuplicateErr(err error, what string) error {
	if utils.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, what)
	}
	return err
}
