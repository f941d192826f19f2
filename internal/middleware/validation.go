package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	pkgvalidator "github.com/jwalitptl/lifedrop-api/pkg/validator"
)

// RegisterValidators installs the domain binding tags on gin's validator:
// blood_type and urgency.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return pkgvalidator.Register(v, map[string]validator.Func{
		"blood_type": pkgvalidator.OneOf(model.BloodTypeStrings()...),
		"urgency":    pkgvalidator.OneOf(model.UrgencyStrings()...),
	})
}
