package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the services. Anything that does not wrap one of
// these is treated as an internal failure.
var (
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrAmountTooLarge     = fmt.Errorf("%w: amount too large", ErrValidation)
	ErrAmbiguousAmount    = fmt.Errorf("%w: amount must not contain thousands separators", ErrValidation)
	ErrDescriptionTooLong = fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, maxDescriptionLen)
	ErrCategoryTooLong    = fmt.Errorf("%w: category too long (max %d characters)", ErrValidation, maxCategoryLen)
	ErrInvalidDate        = fmt.Errorf("%w: invalid date, expected YYYY-MM-DD", ErrValidation)
)

// Authorize returns ErrForbidden unless the requester owns the target resource.
func Authorize(requester, owner string) error {
	if requester == "" || requester != owner {
		return ErrForbidden
	}
	return nil
}
