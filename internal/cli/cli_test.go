package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsumeLoopError_UnwrapsCause(t *testing.T) {
	cause := errors.New("channel closed")
	err := &ConsumeLoopError{Cause: cause}

	assert.Equal(t, "consume loop: channel closed", err.Error())
	assert.ErrorIs(t, err, cause)

	var target *ConsumeLoopError
	assert.True(t, errors.As(err, &target))
}
