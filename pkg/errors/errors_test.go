package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallError_Error(t *testing.T) {
	err := New(ErrCodeCallNotFound, "no such call")
	assert.Equal(t, "CALL_NOT_FOUND: no such call", err.Error())

	wrapped := Wrap(fmt.Errorf("dial tcp: refused"), ErrCodeRelayUnreachable, "relay connect failed")
	assert.Contains(t, wrapped.Error(), "RELAY_UNREACHABLE")
	assert.Contains(t, wrapped.Error(), "dial tcp: refused")
}

func TestCallError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(cause, ErrCodeICEFailed, "ice gave up")
	require.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeICEFailed, CodeOf(New(ErrCodeICEFailed, "x")))

	// Code survives wrapping with fmt.
	err := fmt.Errorf("outer: %w", New(ErrCodeMediaAccessDenied, "camera denied"))
	assert.Equal(t, ErrCodeMediaAccessDenied, CodeOf(err))
	assert.True(t, IsCode(err, ErrCodeMediaAccessDenied))
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeRelayServer, "500 from relay").
		WithContext("status", 500).
		WithContext("attempt", 2)
	assert.Equal(t, 500, err.Context["status"])
	assert.Equal(t, 2, err.Context["attempt"])
}
