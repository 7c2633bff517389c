package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("empty text"), fiber.StatusBadRequest},
		{"forbidden", fmt.Errorf("%w: admin -> unknown", ErrForbidden), fiber.StatusForbidden},
		{"not found", NotFound("user"), fiber.StatusNotFound},
		{"unavailable", Unavailable("append", errors.New("conn reset")), fiber.StatusServiceUnavailable},
		{"unauthorized", ErrUnauthorized, fiber.StatusUnauthorized},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	req := require.New(t)
	cause := errors.New("conn reset")
	err := Unavailable("append", cause)

	req.ErrorIs(err, ErrUnavailable)
	req.ErrorIs(err, cause)
	req.Equal("Send failed", Message(err))
}
