package middleware

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Reason string   `json:"reason" binding:"required,min=3"`
	Items  []string `json:"items" binding:"required,min=1"`
	Status string   `form:"status" binding:"omitempty,oneof=pending shipped"`
}

func TestValidationDetails(t *testing.T) {
	SetupValidator()

	err := binding.Validator.ValidateStruct(&sampleRequest{Reason: "x", Items: []string{}, Status: "lost"})
	require.Error(t, err)

	details := ValidationDetails(err)
	byField := map[string]string{}
	for _, d := range details {
		byField[d.Field] = d.Message
	}
	assert.Equal(t, "Must be at least 3 characters", byField["reason"])
	assert.Equal(t, "Must contain at least 1 entries", byField["items"])
	assert.Equal(t, "Must be one of: pending shipped", byField["status"])
}

func TestValidationDetails_NotValidatorError(t *testing.T) {
	assert.Nil(t, ValidationDetails(errors.New("unexpected EOF")))
}
