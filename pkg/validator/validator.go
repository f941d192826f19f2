package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

// Messages used for common tags when translating validator errors.
var defaultMessages = map[string]string{
	"required":  "is required",
	"email":     "must be a valid email",
	"uuid":      "must be a valid UUID",
	"latitude":  "must be a valid latitude",
	"longitude": "must be a valid longitude",
}

// OneOf builds a validator.Func that accepts only the given string values.
// Empty values pass so that it composes with omitempty and required.
func OneOf(values ...string) validator.Func {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return false
		}
		s := field.String()
		if s == "" {
			return true
		}
		_, ok := allowed[s]
		return ok
	}
}

// Register installs custom validators and makes field errors report json
// names instead of Go field names.
func Register(v *validator.Validate, custom map[string]validator.Func) error {
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register validator %q: %w", tag, err)
		}
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return nil
}

// Translate converts binding errors into a ValidationError. Errors that are
// not validator errors become a ValidationError with a body message.
func Translate(err error) *errors.ValidationError {
	out := errors.NewValidation("invalid request")

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return out.Field("body", err.Error())
	}

	for _, fe := range verrs {
		msg, ok := defaultMessages[fe.Tag()]
		if !ok {
			switch fe.Tag() {
			case "min", "gte":
				msg = "must be at least " + fe.Param()
			case "max", "lte":
				msg = "must be at most " + fe.Param()
			case "oneof":
				msg = "must be one of " + fe.Param()
			default:
				msg = "failed " + fe.Tag() + " validation"
			}
		}
		out.Field(fe.Field(), msg)
	}
	return out
}
