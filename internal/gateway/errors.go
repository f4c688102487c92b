package gateway

import (
	"errors"
)

var (
	// ErrAlreadyStarted is returned by Start while the listener is up
	ErrAlreadyStarted = errors.New("gateway already started")

	// ErrNotStarted is returned by Shutdown when there is nothing to stop
	ErrNotStarted = errors.New("gateway not started")

	// ErrJournalDisabled is reported when a journal route is hit without a database
	ErrJournalDisabled = errors.New("call journal is disabled")
)

// ErrorResponse is the body of every non-200 gateway response. Code is the
// lightningd error code when the node rejected the call, -1 when the node could
// not be reached, and the HTTP status for errors raised by the gateway itself.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
