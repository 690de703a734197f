// internal/verify/timer.go
//
// Cancellable timer handle.  The checker owns one per field and cancels it
// whenever a newer keystroke arrives or the field is torn down.

package verify

import "time"

// Timer is a handle to a pending callback.  Cancel reports whether the call
// was prevented; false means it already fired or was cancelled before.
type Timer interface {
	Cancel() bool
}

// AfterFunc schedules f after d and returns its handle.
type AfterFunc func(d time.Duration, f func()) Timer

type stdTimer struct{ t *time.Timer }

func (s stdTimer) Cancel() bool { return s.t.Stop() }

// StdAfterFunc wraps time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return stdTimer{t: time.AfterFunc(d, f)}
}
