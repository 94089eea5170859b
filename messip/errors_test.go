package messip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "channel busy", KindBusyChannel.String())
	assert.Equal(t, "unknown error", Kind(999).String())
}

func TestErrorMessageIncludesChannelAndCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := newError(KindRefused, "Connect", "", cause)
	assert.Equal(t, `messip: Connect: connection refused: dial tcp: refused`, err.Error())

	err = newError(KindNameTaken, "ChannelCreate", "greet", nil)
	assert.Equal(t, `messip: ChannelCreate: name taken (channel "greet")`, err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindReset, "Send", "", cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	err := newError(KindTimeout, "Receive", "chan1", errors.New("deadline exceeded"))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrRefused))
}

func TestErrorIsRejectsNonErrorTarget(t *testing.T) {
	err := newError(KindProtocol, "op", "", nil)
	assert.False(t, errors.Is(err, errors.New("plain error")))
}
