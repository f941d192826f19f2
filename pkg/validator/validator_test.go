package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	BloodType string `json:"blood_type" validate:"required,blood_type"`
	Quantity  int    `json:"quantity" validate:"min=1,max=10"`
}

func newValidate(t *testing.T) *validator.Validate {
	v := validator.New()
	require.NoError(t, Register(v, map[string]validator.Func{
		"blood_type": OneOf("A+", "A-", "O-"),
	}))
	return v
}

func TestOneOf(t *testing.T) {
	v := newValidate(t)

	assert.NoError(t, v.Struct(sample{BloodType: "O-", Quantity: 2}))

	err := v.Struct(sample{BloodType: "Z+", Quantity: 11})
	require.Error(t, err)

	verr := Translate(err)
	assert.Equal(t, "failed blood_type validation", verr.Fields["blood_type"])
	assert.Equal(t, "must be at most 10", verr.Fields["quantity"])
}

func TestTranslateNonValidatorError(t *testing.T) {
	verr := Translate(errors.New("unexpected EOF"))
	assert.Equal(t, "unexpected EOF", verr.Fields["body"])
}
