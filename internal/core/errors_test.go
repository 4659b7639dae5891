package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(Transport("cdp evaluate failed", errors.New("boom"))))
	assert.True(t, IsTransient(ToolTimeout("deadline exceeded")))
	assert.False(t, IsTransient(NotFound("session missing")))
	assert.False(t, IsTransient(Cancelled("cancelled")))
	assert.False(t, IsTransient(errors.New("not a core error")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("socket reset")
	err := Transport("evaluate", cause)
	require.ErrorIs(t, err, cause)

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, KindTransport, typed.Kind)
}

func TestExecRouteMutexKey(t *testing.T) {
	frame := NewFrameId()
	route := NewExecRoute(NewSessionId(), NewPageId(), frame)
	assert.Equal(t, "frame:"+string(frame), route.MutexKey)
}
