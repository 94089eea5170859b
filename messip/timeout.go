package messip

import (
	"context"
	"time"
)

// Timeout bounds a blocking library call. NoTimeout disables the
// deadline entirely; any other value is a duration. The deadline is
// computed once when the call starts and covers every I/O step of that
// call (a Send's write and its reply read share it); it is not re-armed
// for each step.
type Timeout time.Duration

// NoTimeout disables the deadline (spec section 5's NOTIMEOUT).
const NoTimeout Timeout = -1

func (t Timeout) deadline() (time.Time, bool) {
	if t == NoTimeout {
		return time.Time{}, false
	}
	return time.Now().Add(time.Duration(t)), true
}

// context returns a context bounded by t, and its cancel function. The
// caller must always call cancel.
func (t Timeout) context(parent context.Context) (context.Context, context.CancelFunc) {
	if t == NoTimeout {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(t))
}
