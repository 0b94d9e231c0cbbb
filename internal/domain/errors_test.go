package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(KindInsufficientData, "optimization.Optimize", "need at least %d observations", 2)
	wrapped := fmt.Errorf("failed to optimize: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInsufficientData))
	assert.False(t, errors.Is(wrapped, ErrInvalidWeights))
	assert.Equal(t, KindInsufficientData, KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	err := NewError(KindInvalidWeights, "simulation.Run", "weights sum to %.2f", 0.5)
	assert.Equal(t, "simulation.Run: InvalidWeights: weights sum to 0.50", err.Error())

	inner := errors.New("disk full")
	wrapped := WrapError(KindInternal, "calculations.Set", inner)
	assert.Equal(t, "calculations.Set: Internal: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
