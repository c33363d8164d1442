package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRetryable = errors.New("transient")
var errFatal = errors.New("fatal")

func alwaysRetryable(err error) bool { return errors.Is(err, errRetryable) }

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do("op", 5, time.Millisecond, alwaysRetryable, nil, func() error {
		attempts++
		if attempts < 3 {
			return errRetryable
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	attempts := 0
	onFailureCalled := false
	err := Do("op", 5, time.Millisecond, alwaysRetryable, func() { onFailureCalled = true }, func() error {
		attempts++
		return errFatal
	})
	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, attempts)
	assert.False(t, onFailureCalled)
}

func TestDo_ExhaustsAttemptsAndCallsOnFailure(t *testing.T) {
	attempts := 0
	onFailureCalled := false
	err := Do("op", 3, time.Millisecond, alwaysRetryable, func() { onFailureCalled = true }, func() error {
		attempts++
		return errRetryable
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errRetryable)
	assert.Equal(t, 3, attempts)
	assert.True(t, onFailureCalled)
}
