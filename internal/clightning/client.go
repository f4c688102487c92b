package clightning

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single call when the caller's context has no deadline
const DefaultTimeout = 30 * time.Second

// Node is the set of lightningd calls the gateway proxies
type Node interface {
	GetInfo(ctx context.Context) (*NodeInfo, error)
	ListInvoices(ctx context.Context, label string) ([]Invoice, error)
	DecodePay(ctx context.Context, bolt11 string) (*DecodedPayment, error)
	Invoice(ctx context.Context, msat, label, description string) (*NewInvoice, error)
	DelInvoice(ctx context.Context, label, status string) (*Invoice, error)
}

// Client talks JSON-RPC 2.0 to lightningd over its unix socket
type Client struct {
	socketPath string
	timeout    time.Duration
	nextID     atomic.Uint64
}

var _ Node = (*Client)(nil)

func newClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// NewClient creates a new lightningd client and checks the node answers getinfo
func NewClient(socketPath string, timeout time.Duration) (*Client, error) {
	c := newClient(socketPath, timeout)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.GetInfo(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to lightningd at %s: %w", socketPath, err)
	}
	return c, nil
}

// SocketPath returns the RPC socket the client dials
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Call issues a single JSON-RPC request on a fresh connection and decodes the
// result into result. A nil result discards it.
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := c.nextID.Add(1)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := json.NewEncoder(conn).Encode(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: failed to send %s: %v", ErrNodeUnreachable, method, err)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: failed to read %s response: %v", ErrBadResponse, method, err)
	}

	return decodeResponse(raw, id, result)
}

// decodeResponse splits a raw JSON-RPC response into either an *RPCError or
// the typed result
func decodeResponse(raw []byte, id uint64, result interface{}) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%w: invalid JSON", ErrBadResponse)
	}

	if errObj := gjson.GetBytes(raw, "error"); errObj.Exists() && errObj.Type != gjson.Null {
		rpcErr := &RPCError{}
		if err := json.Unmarshal([]byte(errObj.Raw), rpcErr); err != nil {
			return fmt.Errorf("%w: unreadable error object: %v", ErrBadResponse, err)
		}
		return rpcErr
	}

	if got := gjson.GetBytes(raw, "id"); got.Uint() != id {
		return fmt.Errorf("%w: response id %s does not match request id %d", ErrBadResponse, got.Raw, id)
	}

	res := gjson.GetBytes(raw, "result")
	if !res.Exists() {
		return fmt.Errorf("%w: missing result", ErrBadResponse)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Raw), result); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// GetInfo retrieves node information
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.Call(ctx, "getinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListInvoices retrieves invoices, restricted to one label when label is not empty
func (c *Client) ListInvoices(ctx context.Context, label string) ([]Invoice, error) {
	params := map[string]interface{}{}
	if label != "" {
		params["label"] = label
	}

	var response InvoiceList
	if err := c.Call(ctx, "listinvoices", params, &response); err != nil {
		return nil, err
	}
	if response.Invoices == nil {
		return []Invoice{}, nil
	}
	return response.Invoices, nil
}

// DecodePay decodes a bolt11 payment request
func (c *Client) DecodePay(ctx context.Context, bolt11 string) (*DecodedPayment, error) {
	var decoded DecodedPayment
	if err := c.Call(ctx, "decodepay", map[string]interface{}{"bolt11": bolt11}, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// Invoice creates a new invoice. msat is a millisatoshi amount or "any".
func (c *Client) Invoice(ctx context.Context, msat, label, description string) (*NewInvoice, error) {
	params := map[string]interface{}{
		"amount_msat": amountParam(msat),
		"label":       label,
		"description": description,
	}

	var invoice NewInvoice
	if err := c.Call(ctx, "invoice", params, &invoice); err != nil {
		return nil, err
	}
	invoice.Label = label
	return &invoice, nil
}

// DelInvoice deletes the invoice with the given label if it is in the given status
func (c *Client) DelInvoice(ctx context.Context, label, status string) (*Invoice, error) {
	params := map[string]interface{}{
		"label":  label,
		"status": status,
	}

	var invoice Invoice
	if err := c.Call(ctx, "delinvoice", params, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// amountParam sends numeric amounts as JSON numbers and anything else
// (e.g. "any") as a string for lightningd to judge
func amountParam(msat string) interface{} {
	if n, err := strconv.ParseUint(msat, 10, 64); err == nil {
		return n
	}
	return msat
}
