package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=patient doctor"`
	At       string `json:"at,omitempty" validate:"omitempty,clock"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	err := v.Validate(&signup{Email: "a@b.co", Password: "secret1", At: "09:30"})
	assert.NoError(t, err)
}

func TestValidate_FieldErrors(t *testing.T) {
	v := New()
	err := v.Validate(&signup{Email: "nope", Password: "123", Role: "king", At: "25:00"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	got := map[string]string{}
	for _, f := range ae.Fields {
		got[f.Field] = f.Message
	}
	assert.Equal(t, "must be a valid email address", got["email"])
	assert.Equal(t, "must be at least 6 characters", got["password"])
	assert.Equal(t, "must be one of: patient, doctor", got["role"])
	assert.Equal(t, "must be a time in HH:MM format", got["at"])
}

func TestValidate_Required(t *testing.T) {
	v := New()
	err := v.Validate(&signup{})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	require.Len(t, ae.Fields, 2)
	assert.Equal(t, "is required", ae.Fields[0].Message)
}
