package header

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFormatError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad magic", errors.New("not a crypt4gh file"), true},
		{"bad magic, mixed case", errors.New("Magic mismatch"), true},
		{"unsupported version", errors.New("unsupported version 99"), true},
		{"header packet error", fmt.Errorf("reading crypt4gh header: %w", errors.New("could not decrypt header packet")), true},
		{"truncated stream", fmt.Errorf("reading crypt4gh header: %w", io.ErrUnexpectedEOF), true},
		{"disk fault", errors.New("disk read failed"), false},
		{"permission denied", fmt.Errorf("reading crypt4gh header: %w", errors.New("permission denied")), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsFormatError(c.err))
		})
	}
}
