package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	req := require.New(t)

	wrapped := fmt.Errorf("send: %w", Authorization("cannot start conversation"))
	req.Equal(CodeAuthorization, CodeOf(wrapped))
	req.True(Is(wrapped, CodeAuthorization))
	req.False(Is(wrapped, CodeValidation))

	req.Equal(CodeInternal, CodeOf(errors.New("boom")))
	req.False(Is(nil, CodeInternal))
}

func TestError_Unwrap(t *testing.T) {
	req := require.New(t)
	cause := errors.New("connection refused")

	err := Internal("failed to persist message", cause)

	req.ErrorIs(err, cause)
	req.Equal("INTERNAL: failed to persist message: connection refused", err.Error())
	req.Equal("VALIDATION: text is required", Validation("text is required").Error())
}
