package billing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		sentinel error
	}{
		{"work order", WorkOrderNotFound("WO-1"), "work_order", ErrWorkOrderNotFound},
		{"rate", RateNotFound(RateKey{Kind: RateMachine, Key: "crane"}), "rate", ErrRateNotFound},
		{"adjustment", AdjustmentNotFound("adj-1"), "adjustment", ErrAdjustmentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("load: %w", tt.err)

			var nf *NotFoundError
			require.True(t, errors.As(wrapped, &nf))
			assert.Equal(t, tt.kind, nf.Kind)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.True(t, IsNotFound(wrapped))
		})
	}
	assert.EqualError(t, RateNotFound(RateKey{Kind: RateMachine, Key: "crane"}), `rate "machine/crane" not found`)
}
