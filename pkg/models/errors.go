package models

// FieldError is the per-field validation outcome surfaced to the UI. The empty
// value means the field is valid. Values double as message lookup keys.
type FieldError string

const (
	ErrNone               FieldError = ""
	ErrRequired           FieldError = "required"
	ErrDuplicate          FieldError = "duplicate"
	ErrInvalidFormat      FieldError = "invalid-format"
	ErrExpression         FieldError = "expression-error"
	ErrConnectionUntested FieldError = "connection-untested"
	ErrConnectionFailed   FieldError = "connection-failed"
)

func (e FieldError) IsSet() bool {
	return e != ErrNone
}
