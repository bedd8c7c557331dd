package apperr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFound_Message(t *testing.T) {
	assert.Equal(t, "Product not found", NotFound("Product").Error())
	assert.Equal(t, "Product(s) not found: a, b", NotFound("Product(s)", "a", "b").Error())
}

func TestValidation_Message(t *testing.T) {
	assert.Equal(t, "Validation error", Validation("Validation error").Error())
	assert.Equal(t,
		"Validation error: email: must be a valid email; password: is required",
		Validation("Validation error", "email: must be a valid email", "password: is required").Error(),
	)
}

func TestErrorsAs_ThroughWrap(t *testing.T) {
	err := errors.Wrap(Conflict("Insufficient stock for Laptop"), "place order")

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Insufficient stock for Laptop", conflict.Reason)

	var notFound *NotFoundError
	assert.False(t, errors.As(err, &notFound))
}
