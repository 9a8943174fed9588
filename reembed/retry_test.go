package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failing returns an operation that fails n times with err before succeeding.
func failing(n int, err error, attempts *int) func() error {
	return func() error {
		*attempts++
		if *attempts <= n {
			return err
		}
		return nil
	}
}

func TestRetryWithBackoff(t *testing.T) {
	transient := errors.New("connection reset")
	missing := fmt.Errorf("note:1: %w", storage.ErrNotFound)

	tests := []struct {
		name         string
		failures     int
		err          error
		maxAttempts  int
		wantErr      error
		wantAttempts int
	}{
		{"first try", 0, nil, 3, nil, 1},
		{"eventual success", 2, transient, 5, nil, 3},
		{"all attempts fail", 10, transient, 3, transient, 3},
		{"missing record is not retried", 10, missing, 5, storage.ErrNotFound, 1},
		{"zero attempts", 10, transient, 0, ErrInvalidMaxAttempts, 0},
		{"negative attempts", 10, transient, -1, ErrInvalidMaxAttempts, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := RetryWithBackoff(context.Background(), failing(tt.failures, tt.err, &attempts), tt.maxAttempts, time.Millisecond)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
		})
	}
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, 10*time.Millisecond)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_DelaysDouble(t *testing.T) {
	var stamps []time.Time
	err := RetryWithBackoff(context.Background(), func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			return errors.New("error")
		}
		return nil
	}, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, stamps, 4)

	for i, want := range []time.Duration{10, 20, 40} {
		gap := stamps[i+1].Sub(stamps[i])
		assert.GreaterOrEqual(t, gap, want*time.Millisecond, "delay %d", i)
	}
}
