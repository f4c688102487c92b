package clightning

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes returned by lightningd that the gateway cares about
const (
	CodeInvalidParams    = -32602
	CodeLabelExists      = 900
	CodeInvoiceNotFound  = 905
	CodeStatusUnexpected = 906
	CodeTransportFailure = -1
)

var (
	// ErrNodeUnreachable indicates the RPC socket could not be dialed
	ErrNodeUnreachable = errors.New("lightning node not reachable")

	// ErrBadResponse indicates the node answered with something that is not a JSON-RPC response
	ErrBadResponse = errors.New("malformed response from lightning node")
)

// RPCError is an error object returned by lightningd for a rejected call
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("lightningd error %d: %s", e.Code, e.Message)
}

// ErrorCode extracts the lightningd error code from err, or CodeTransportFailure
// when the call never got an answer from the node.
func ErrorCode(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return CodeTransportFailure
}
