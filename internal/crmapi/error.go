// internal/crmapi/error.go
//
// Typed results for the CRM backend boundary.
//
// Context
// -------
// Every call to the backend ends in either a decoded success value or an
// *Error whose Kind the caller switches on.  Status codes are classified
// once, here, so the orchestrator never branches on raw numbers.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package crmapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind int

const (
	KindServer     Kind = iota // 5xx or an unexpected status
	KindValidation             // 400
	KindNotFound               // 404
	KindConflict               // 409
	KindTransport              // request never completed
	KindMalformed              // response body could not be decoded
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	default:
		return "server"
	}
}

// Error is a failed backend call.
type Error struct {
	Op      string // create, update, exists
	Entity  string
	Status  int // 0 when no response arrived
	Kind    Kind
	Message string              // server-supplied message, optional
	Fields  map[string][]string // server field errors, optional
	Err     error               // underlying transport or decode error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("crmapi %s %s: %d %s: %s", e.Op, e.Entity, e.Status, e.Kind, msg)
	}
	return fmt.Sprintf("crmapi %s %s: %s: %s", e.Op, e.Entity, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status, 0 when none was received.
func (e *Error) StatusCode() int { return e.Status }

// KindOf returns the Kind of err, and false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// kindForStatus maps a non-2xx status to a Kind.
func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindServer
	}
}

// ErrorBody is the JSON shape of error responses.
type ErrorBody struct {
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}
