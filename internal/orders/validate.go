package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims the description and checks the input. Failures wrap
// ErrValidation.
func (in OrderInput) Normalize() (OrderInput, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return in, fmt.Errorf("%w: %s", ErrValidation, describe(verrs[0]))
		}
		return in, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return in, nil
}

func describe(fe validator.FieldError) string {
	switch {
	case fe.StructField() == "Description" && fe.Tag() == "required":
		return "description is required"
	case fe.StructField() == "Description" && fe.Tag() == "max":
		return fmt.Sprintf("description must be at most %d characters", DescriptionMaxLen)
	case strings.HasPrefix(fe.StructField(), "ProductIDs"):
		return "productIds must be positive integers"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
