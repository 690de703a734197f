// internal/submit/errors.go
//
// Submission errors surfaced to the host.
//
// A failed Submit returns exactly one of:
//   •  *form.ValidationError – the state now holds field or form messages.
//   •  *GlobalError         – show a notification; the state is untouched.
//   •  ErrBusy              – another submission of the same session is running.
//
// Context cancellation while verifying is returned wrapped, as is.

package submit

import (
	"errors"
)

// ErrBusy rejects a Submit while another is in flight.
var ErrBusy = errors.New("submit: submission already in progress")

// User-facing notification texts.
const (
	MsgNotFound = "This record no longer exists. It may have been deleted."
	MsgNetwork  = "Could not reach the server. Please check your connection and try again."
	MsgServer   = "Something went wrong while saving. Please try again."
	MsgInvalid  = "Please correct the highlighted fields."
)

// GlobalError is a failure not attributable to a field.
type GlobalError struct {
	Message   string
	Retryable bool
	Err       error
}

func (e *GlobalError) Error() string {
	if e.Err != nil {
		return "submit: " + e.Message + ": " + e.Err.Error()
	}
	return "submit: " + e.Message
}

func (e *GlobalError) Unwrap() error { return e.Err }

// IsGlobal reports whether err carries a *GlobalError.
func IsGlobal(err error) bool {
	var ge *GlobalError
	return errors.As(err, &ge)
}
