package services

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the caller is authenticated but not
// permitted to perform the operation.
var ErrForbidden = errors.New("forbidden")

// ErrValidation is the base of all input validation failures. Matches
// with errors.Is; the wrapped message names the offending field.
var ErrValidation = errors.New("invalid input")

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
