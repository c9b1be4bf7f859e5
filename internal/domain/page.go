package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Page bounds a paginated read. Negative values are rejected.
type Page struct {
	Offset int `validate:"gte=0"`
	Limit  int `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the bounds, wrapping failures in ErrValidation.
func (p Page) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("page offset=%d limit=%d: %v: %w", p.Offset, p.Limit, err, ErrValidation)
	}
	return nil
}

// Window returns the half-open slice bounds of p over n items.
func (p Page) Window(n int) (start, end int) {
	start = min(p.Offset, n)
	end = n
	if p.Limit < n-start {
		end = start + p.Limit
	}
	return start, end
}
