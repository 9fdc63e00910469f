package vm

import (
	"errors"

	"github.com/go-playground/validator/v10"

	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateCommand runs struct-tag validation and translates the first
// failing field into a Validation AppError.
func validateCommand(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.ErrValidation(fe.Field(), fe.Tag())
		}
		return apperrors.ErrValidation("command", err.Error())
	}
	return nil
}
