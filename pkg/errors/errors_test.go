package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		typ      ErrorType
		expected bool
	}{
		{
			name:     "direct app error",
			err:      NewDuplicateVoteError(),
			typ:      ErrorTypeDuplicateVote,
			expected: true,
		},
		{
			name:     "wrapped app error",
			err:      fmt.Errorf("cast vote: %w", NewInvalidTargetError("stale button")),
			typ:      ErrorTypeInvalidTarget,
			expected: true,
		},
		{
			name:     "different type",
			err:      NewInsufficientPoolError("g1", 1),
			typ:      ErrorTypeConfigMissing,
			expected: false,
		},
		{
			name:     "plain error",
			err:      stderrors.New("boom"),
			typ:      ErrorTypeInternal,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			typ:      ErrorTypeInternal,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsType(tt.err, tt.typ))
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewCollaboratorUnavailableError("discord", cause, true)

	assert.Equal(t, "collaborator_unavailable: discord unavailable (connection refused)", err.Error())
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)

	appErr, ok := As(fmt.Errorf("post duel: %w", err))
	require.True(t, ok)
	assert.Same(t, err, appErr)
}

func TestConstructorsStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusConflict, NewDuplicateVoteError().StatusCode)
	assert.Equal(t, http.StatusBadRequest, NewInvalidTargetError("x").StatusCode)
	assert.Equal(t, http.StatusNotFound, NewConfigMissingError("g").StatusCode)
	assert.Equal(t, http.StatusConflict, NewInsufficientPoolError("g", 0).StatusCode)
	assert.Equal(t, "g", NewConfigMissingError("g").Details["guild_id"])
}
