package vmrequest

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
)

// vmNamePattern enforces lowercase alphanumerics and hyphens, starting
// and ending alphanumeric. Length and the no-consecutive-hyphens rule are
// checked separately since a single regexp for both is unreadable.
var vmNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("vmname", validateVMNameTag); err != nil {
		panic(err)
	}
	return v
}

func validateVMNameTag(fl validator.FieldLevel) bool {
	return validVMName(fl.Field().String())
}

func validVMName(name string) bool {
	if strings.Contains(name, "--") {
		return false
	}
	return vmNamePattern.MatchString(name)
}

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
