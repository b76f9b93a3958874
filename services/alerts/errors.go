package alerts

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid alert")
	ErrDuplicate        = errors.New("an identical active alert already exists")
	ErrNotFound         = errors.New("alert not found")
	ErrAlreadyTriggered = errors.New("alert already triggered")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
