// Package check compares a running gateway against direct calls to the node
// behind it.
package check

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brewgator/lightning-rest/internal/clightning"

	"github.com/imroc/req"
	log "github.com/sirupsen/logrus"
)

// SamplePaymentRequest is the donation example from BOLT #11
const SamplePaymentRequest = "lnbc1pvjluezpp5qqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqypqdpl2pkx2ctnv5sxxmmwwd5kgetjypeh2ursdae8g6twvus8g6rfwvs8qun0dfjkxaq8rkx3yf5tcsyz3d73gafnh3cax9rn449d9p5uxz9ezhhypd0elx87sjle52x86fux2ypatgddc6k63n7erqz25le42c4u4ecky03ylcqca784w"

// invoiceNetwork is the only network invoices are created on unless forced
const invoiceNetwork = "testnet"

type Options struct {
	// Force runs the invoice checks on any network
	Force bool
	// LabelPrefix names the invoices the checker creates
	LabelPrefix string
}

type Result struct {
	Name    string
	Route   string
	Passed  bool
	Skipped bool
	Detail  string
}

type Report struct {
	Network string
	Results []Result
}

// Failed counts checks that ran and did not pass
func (r *Report) Failed() int {
	failed := 0
	for _, res := range r.Results {
		if !res.Passed && !res.Skipped {
			failed++
		}
	}
	return failed
}

type Checker struct {
	baseURL string
	node    clightning.Node
	http    *req.Req
}

// NewChecker creates a checker for the gateway at baseURL backed by node.
// A nil client uses a client with a 30 second timeout.
func NewChecker(baseURL string, node clightning.Node, client *http.Client) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r := req.New()
	r.SetClient(client)

	return &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		node:    node,
		http:    r,
	}
}

// Run executes every check in order. Invoices created along the way are
// deleted before returning.
func (c *Checker) Run(ctx context.Context, opts Options) (*Report, error) {
	info, err := c.node.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}

	report := &Report{Network: info.Network}
	if opts.LabelPrefix == "" {
		opts.LabelPrefix = "test-invoice"
	}
	label := fmt.Sprintf("%s-%d", opts.LabelPrefix, rand.Int63())

	report.add(c.compare(ctx, "getinfo", "GET", "/utility/getinfo", nil, func() (interface{}, error) {
		return c.node.GetInfo(ctx)
	}))
	report.add(c.compare(ctx, "listinvoice", "GET", "/payment/listinvoice", nil, func() (interface{}, error) {
		return c.node.ListInvoices(ctx, "")
	}))
	report.add(c.expectBody(ctx, "listinvoice empty filter", "GET", "/payment/listinvoice",
		url.Values{"label": {label + "-missing"}}, "[]"))
	report.add(c.compare(ctx, "decodepay", "POST", "/payment/decodepay",
		url.Values{"bolt11": {SamplePaymentRequest}}, func() (interface{}, error) {
			return c.node.DecodePay(ctx, SamplePaymentRequest)
		}))

	if info.Network != invoiceNetwork && !opts.Force {
		skip := fmt.Sprintf("node is on %s, invoices are only created on %s", info.Network, invoiceNetwork)
		report.add(Result{Name: "invoice", Route: "/payment/invoice", Skipped: true, Detail: skip})
		report.add(Result{Name: "delInvoice", Route: "/payment/delInvoice", Skipped: true, Detail: skip})
		return report, nil
	}

	c.runInvoiceChecks(ctx, report, label)
	return report, nil
}

func (c *Checker) runInvoiceChecks(ctx context.Context, report *Report, label string) {
	created := c.createInvoice(ctx, label)
	report.add(created)
	if !created.Passed {
		return
	}
	defer c.cleanup(ctx, label)

	report.add(c.compare(ctx, "listinvoice label", "GET", "/payment/listinvoice",
		url.Values{"label": {label}}, func() (interface{}, error) {
			return c.node.ListInvoices(ctx, label)
		}))

	deleted := c.expectStatus(ctx, "delInvoice", "POST", "/payment/delInvoice",
		url.Values{"label": {label}, "status": {clightning.InvoiceUnpaid}})
	report.add(deleted)
	if !deleted.Passed {
		return
	}

	report.add(c.expectBody(ctx, "listinvoice after delete", "GET", "/payment/listinvoice",
		url.Values{"label": {label}}, "[]"))
}

// createInvoice posts the invoice route and checks the response names the invoice
func (c *Checker) createInvoice(ctx context.Context, label string) Result {
	result := Result{Name: "invoice", Route: "/payment/invoice"}

	body, status, err := c.call(ctx, "POST", result.Route, url.Values{
		"msat":        {"1000"},
		"label":       {label},
		"description": {"test"},
	})
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	if status != http.StatusOK {
		result.Detail = fmt.Sprintf("status %d: %s", status, body)
		return result
	}

	var invoice clightning.NewInvoice
	if err := json.Unmarshal(body, &invoice); err != nil {
		result.Detail = fmt.Sprintf("unreadable response: %v", err)
		return result
	}
	if invoice.Bolt11 == "" || invoice.Label != label {
		result.Detail = fmt.Sprintf("expected bolt11 and label %q, got %s", label, body)
		return result
	}

	result.Passed = true
	result.Detail = invoice.Bolt11
	return result
}

// cleanup removes the check invoice directly on the node if it is still there
func (c *Checker) cleanup(ctx context.Context, label string) {
	invoices, err := c.node.ListInvoices(ctx, label)
	if err != nil {
		log.Warnf("[check] failed to list %s for cleanup: %v", label, err)
		return
	}
	for _, inv := range invoices {
		if _, err := c.node.DelInvoice(ctx, inv.Label, inv.Status); err != nil {
			log.Warnf("[check] failed to delete %s: %v", inv.Label, err)
		}
	}
}

// compare checks the gateway answers exactly what a direct node call returns.
// When the node rejects the call, the gateway must reject it with the same code.
func (c *Checker) compare(ctx context.Context, name, method, route string, params url.Values, direct func() (interface{}, error)) Result {
	result := Result{Name: name, Route: route}

	want, directErr := direct()
	body, status, err := c.call(ctx, method, route, params)
	if err != nil {
		result.Detail = err.Error()
		return result
	}

	if directErr != nil {
		var rpcErr *clightning.RPCError
		if !errors.As(directErr, &rpcErr) {
			result.Detail = fmt.Sprintf("direct call failed: %v", directErr)
			return result
		}
		var got struct {
			Code int `json:"code"`
		}
		if status != http.StatusBadRequest || json.Unmarshal(body, &got) != nil || got.Code != rpcErr.Code {
			result.Detail = fmt.Sprintf("node rejected with %d, gateway answered %d: %s", rpcErr.Code, status, body)
			return result
		}
		result.Passed = true
		result.Detail = fmt.Sprintf("rejected with %d by both", rpcErr.Code)
		return result
	}

	expected, err := json.Marshal(want)
	if err != nil {
		result.Detail = fmt.Sprintf("failed to encode direct result: %v", err)
		return result
	}
	if status != http.StatusOK {
		result.Detail = fmt.Sprintf("status %d: %s", status, body)
		return result
	}
	if string(body) != string(expected) {
		result.Detail = fmt.Sprintf("body mismatch:\n  gateway: %s\n  node:    %s", body, expected)
		return result
	}

	result.Passed = true
	return result
}

func (c *Checker) expectBody(ctx context.Context, name, method, route string, params url.Values, want string) Result {
	result := c.expectStatus(ctx, name, method, route, params)
	if result.Passed && result.Detail != want {
		result.Passed = false
		result.Detail = fmt.Sprintf("expected %s, got %s", want, result.Detail)
	}
	return result
}

// expectStatus checks for a 200 and keeps the body as the detail
func (c *Checker) expectStatus(ctx context.Context, name, method, route string, params url.Values) Result {
	result := Result{Name: name, Route: route}

	body, status, err := c.call(ctx, method, route, params)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	result.Detail = string(body)
	result.Passed = status == http.StatusOK
	if !result.Passed {
		result.Detail = fmt.Sprintf("status %d: %s", status, body)
	}
	return result
}

// call sends params as the query string for GET and as a form body for POST
func (c *Checker) call(ctx context.Context, method, route string, params url.Values) ([]byte, int, error) {
	args := []interface{}{ctx}
	if params != nil {
		args = append(args, params)
	}

	var (
		resp *req.Resp
		err  error
	)
	switch method {
	case "GET":
		resp, err = c.http.Get(c.baseURL+route, args...)
	case "POST":
		resp, err = c.http.Post(c.baseURL+route, args...)
	default:
		return nil, 0, fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, route, err)
	}

	return resp.Bytes(), resp.Response().StatusCode, nil
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}
