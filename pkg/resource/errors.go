package resource

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotBound = errors.New("resource: table not bound")
	ErrNoPrimaryKey  = errors.New("resource: table declares no primary key")
	ErrUnknownColumn = errors.New("resource: unknown column")
	ErrMissingField  = errors.New("resource: column has no field descriptor")
	ErrKeyCount      = errors.New("resource: primary key value count mismatch")
)

// FieldError reports a value that a field setter could not accept.
type FieldError struct {
	Column string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("resource: set %s: %v", e.Column, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
