package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", fmt.Errorf("bad: %w", ErrInvalidRequest), 400},
		{"validation", fmt.Errorf("bad: %w", ErrValidation), 400},
		{"auth", fmt.Errorf("bad: %w", ErrAuth), 401},
		{"hash mismatch", fmt.Errorf("bad: %w", ErrHashMismatch), 401},
		{"not found", fmt.Errorf("bad: %w", ErrNotFound), 404},
		{"range", fmt.Errorf("bad: %w", ErrRangeNotSatisfiable), 416},
		{"upstream", fmt.Errorf("bad: %w", ErrUpstreamUnavailable), 503},
		{"unknown", errors.New("boom"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestAsFloodWait(t *testing.T) {
	fw := &FloodWait{Seconds: 30}
	wrapped := fmt.Errorf("upstream: %w", fw)

	got, ok := AsFloodWait(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 30, got.Seconds)

	_, ok = AsFloodWait(errors.New("not a flood wait"))
	assert.False(t, ok)
}
