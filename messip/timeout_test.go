package messip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoTimeoutDeadlineDisabled(t *testing.T) {
	_, ok := NoTimeout.deadline()
	assert.False(t, ok)
}

func TestFiniteTimeoutDeadlineInFuture(t *testing.T) {
	tm := Timeout(50 * time.Millisecond)
	dl, ok := tm.deadline()
	require.True(t, ok)
	assert.True(t, dl.After(time.Now()))
}

func TestNoTimeoutContextHasNoDeadline(t *testing.T) {
	ctx, cancel := NoTimeout.context(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestFiniteTimeoutContextExpires(t *testing.T) {
	ctx, cancel := Timeout(10 * time.Millisecond).context(context.Background())
	defer cancel()
	select {
	case <-ctx.Done():
		assert.Equal(t, context.DeadlineExceeded, ctx.Err())
	case <-time.After(time.Second):
		t.Fatal("context never expired")
	}
}
