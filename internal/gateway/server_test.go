package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brewgator/lightning-rest/internal/clightning"
	"github.com/brewgator/lightning-rest/internal/db"
	"github.com/brewgator/lightning-rest/pkg/testutils"
)

// samplePaymentRequest is the donation example from BOLT #11
const samplePaymentRequest = "lnbc1pvjluezpp5qqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqypqdpl2pkx2ctnv5sxxmmwwd5kgetjypeh2ursdae8g6twvus8g6rfwvs8qun0dfjkxaq8rkx3yf5tcsyz3d73gafnh3cax9rn449d9p5uxz9ezhhypd0elx87sjle52x86fux2ypatgddc6k63n7erqz25le42c4u4ecky03ylcqca784w"

// unreachableNode fails every call the way Client does when the socket is gone
type unreachableNode struct{}

func (unreachableNode) GetInfo(ctx context.Context) (*clightning.NodeInfo, error) {
	return nil, fmt.Errorf("%w: dial unix /tmp/lightning-rpc: connect: no such file or directory", clightning.ErrNodeUnreachable)
}

func (unreachableNode) ListInvoices(ctx context.Context, label string) ([]clightning.Invoice, error) {
	return nil, clightning.ErrNodeUnreachable
}

func (unreachableNode) DecodePay(ctx context.Context, bolt11 string) (*clightning.DecodedPayment, error) {
	return nil, clightning.ErrNodeUnreachable
}

func (unreachableNode) Invoice(ctx context.Context, msat, label, description string) (*clightning.NewInvoice, error) {
	return nil, clightning.ErrNodeUnreachable
}

func (unreachableNode) DelInvoice(ctx context.Context, label, status string) (*clightning.Invoice, error) {
	return nil, clightning.ErrNodeUnreachable
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *clightning.MockNode) {
	t.Helper()
	node, err := clightning.NewMockNode("testnet")
	testutils.AssertNoError(t, err)
	return NewServer(node, opts...), node
}

func newTestJournal(t *testing.T) *db.Database {
	t.Helper()
	journal, err := db.NewDatabase(testutils.CreateTestDBPath(t))
	testutils.AssertNoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func postForm(t *testing.T, s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	body, err := json.Marshal(v)
	testutils.AssertNoError(t, err)
	return string(body)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func createInvoice(t *testing.T, s *Server, label string) clightning.NewInvoice {
	t.Helper()
	rr := postForm(t, s, "/payment/invoice", url.Values{
		"msat":        {"1000"},
		"label":       {label},
		"description": {"test"},
	})
	testutils.AssertStatus(t, rr, http.StatusOK)

	var created clightning.NewInvoice
	testutils.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	return created
}

func TestGetInfo(t *testing.T) {
	server, node := newTestServer(t)

	rr := get(t, server, "/utility/getinfo")
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertEqual(t, rr.Header().Get("Content-Type"), "application/json")

	direct, err := node.GetInfo(context.Background())
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, rr.Body.String(), mustJSON(t, direct))
}

func TestListInvoiceMatchesNode(t *testing.T) {
	server, node := newTestServer(t)
	createInvoice(t, server, "test-invoice-a")
	createInvoice(t, server, "test-invoice-b")

	tests := []struct {
		name  string
		path  string
		label string
	}{
		{"no filter", "/payment/listinvoice", ""},
		{"label filter", "/payment/listinvoice?label=test-invoice-b", "test-invoice-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, server, tt.path)
			testutils.AssertStatus(t, rr, http.StatusOK)

			direct, err := node.ListInvoices(context.Background(), tt.label)
			testutils.AssertNoError(t, err)
			testutils.AssertEqual(t, rr.Body.String(), mustJSON(t, direct))
		})
	}
}

func TestListInvoiceUnknownLabelIsEmptyArray(t *testing.T) {
	server, _ := newTestServer(t)

	rr := get(t, server, "/payment/listinvoice?label=test-invoice-missing")
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertEqual(t, rr.Body.String(), "[]")
}

func TestDecodePayMatchesNode(t *testing.T) {
	server, node := newTestServer(t)

	rr := postForm(t, server, "/payment/decodepay", url.Values{"bolt11": {samplePaymentRequest}})
	testutils.AssertStatus(t, rr, http.StatusOK)

	direct, err := node.DecodePay(context.Background(), samplePaymentRequest)
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, rr.Body.String(), mustJSON(t, direct))
}

func TestDecodePayOwnInvoice(t *testing.T) {
	server, node := newTestServer(t)
	created := createInvoice(t, server, "decode-me")

	rr := postForm(t, server, "/payment/decodepay", url.Values{"bolt11": {created.Bolt11}})
	testutils.AssertStatus(t, rr, http.StatusOK)

	var decoded clightning.DecodedPayment
	testutils.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	testutils.AssertEqual(t, decoded.PaymentHash, created.PaymentHash)
	testutils.AssertEqual(t, decoded.AmountMsat, uint64(1000))
	testutils.AssertEqual(t, decoded.Description, "test")

	info, err := node.GetInfo(context.Background())
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, decoded.Payee, info.ID)
}

func TestInvoiceLifecycle(t *testing.T) {
	server, node := newTestServer(t)
	label := fmt.Sprintf("test-invoice-%d", time.Now().UnixNano())

	created := createInvoice(t, server, label)
	testutils.AssertEqual(t, created.Label, label)
	if !strings.HasPrefix(created.Bolt11, "lntb") {
		t.Errorf("bolt11 %q is not a testnet invoice", created.Bolt11)
	}

	rr := get(t, server, "/payment/listinvoice?label="+url.QueryEscape(label))
	testutils.AssertStatus(t, rr, http.StatusOK)
	var listed []clightning.Invoice
	testutils.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	testutils.AssertEqual(t, len(listed), 1)
	testutils.AssertEqual(t, listed[0].Label, label)
	testutils.AssertEqual(t, listed[0].Bolt11, created.Bolt11)
	testutils.AssertEqual(t, listed[0].AmountMsat, uint64(1000))
	testutils.AssertEqual(t, listed[0].Description, "test")

	direct, err := node.ListInvoices(context.Background(), label)
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, rr.Body.String(), mustJSON(t, direct))

	rr = postForm(t, server, "/payment/delInvoice", url.Values{"label": {label}, "status": {"unpaid"}})
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertEqual(t, rr.Body.String(), mustJSON(t, direct[0]))

	rr = get(t, server, "/payment/listinvoice?label="+url.QueryEscape(label))
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertEqual(t, rr.Body.String(), "[]")
}

func TestNodeErrors(t *testing.T) {
	server, _ := newTestServer(t)
	createInvoice(t, server, "taken")

	tests := []struct {
		name     string
		path     string
		form     url.Values
		wantCode int
	}{
		{"duplicate label", "/payment/invoice", url.Values{"msat": {"1000"}, "label": {"taken"}, "description": {"test"}}, clightning.CodeLabelExists},
		{"invalid amount", "/payment/invoice", url.Values{"msat": {"lots"}, "label": {"new"}, "description": {"test"}}, clightning.CodeInvalidParams},
		{"empty fields forwarded", "/payment/invoice", url.Values{}, clightning.CodeInvalidParams},
		{"unknown invoice", "/payment/delInvoice", url.Values{"label": {"nope"}, "status": {"unpaid"}}, clightning.CodeInvoiceNotFound},
		{"status mismatch", "/payment/delInvoice", url.Values{"label": {"taken"}, "status": {"paid"}}, clightning.CodeStatusUnexpected},
		{"malformed bolt11", "/payment/decodepay", url.Values{"bolt11": {"lnbc1garbage"}}, clightning.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(t, server, tt.path, tt.form)
			testutils.AssertStatus(t, rr, http.StatusBadRequest)
			resp := decodeError(t, rr)
			testutils.AssertEqual(t, resp.Code, tt.wantCode)
			testutils.AssertNotEqual(t, resp.Message, "")
		})
	}
}

func TestUnreachableNode(t *testing.T) {
	server := NewServer(unreachableNode{})

	rr := get(t, server, "/utility/getinfo")
	testutils.AssertStatus(t, rr, http.StatusBadGateway)
	resp := decodeError(t, rr)
	testutils.AssertEqual(t, resp.Code, clightning.CodeTransportFailure)
	if !strings.Contains(resp.Message, "not reachable") {
		t.Errorf("unexpected message %q", resp.Message)
	}

	rr = postForm(t, server, "/payment/invoice", url.Values{"msat": {"1000"}, "label": {"x"}, "description": {"test"}})
	testutils.AssertStatus(t, rr, http.StatusBadGateway)
}

func TestBadFormBody(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/payment/invoice", strings.NewReader("msat=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutils.AssertStatus(t, rr, http.StatusBadRequest)
	testutils.AssertEqual(t, decodeError(t, rr).Code, http.StatusBadRequest)
}

func TestRouteMethods(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name   string
		rr     *httptest.ResponseRecorder
		status int
	}{
		{"GET on a POST route", get(t, server, "/payment/invoice"), http.StatusMethodNotAllowed},
		{"POST on a GET route", postForm(t, server, "/utility/getinfo", url.Values{}), http.StatusMethodNotAllowed},
		{"unknown payment route", get(t, server, "/payment/unknown"), http.StatusNotFound},
		{"unknown prefix", get(t, server, "/wallet/balance"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutils.AssertStatus(t, tt.rr, tt.status)
			testutils.AssertEqual(t, tt.rr.Header().Get("Content-Type"), "application/json")
			resp := decodeError(t, tt.rr)
			testutils.AssertEqual(t, resp.Code, tt.status)
			testutils.AssertNotEqual(t, resp.Message, "")
		})
	}
}

func TestHealth(t *testing.T) {
	server := NewServer(unreachableNode{})

	rr := get(t, server, "/utility/health")
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertEqual(t, rr.Body.String(), `{"status":"ok"}`)
}

func TestCORS(t *testing.T) {
	server, _ := newTestServer(t, WithAllowedOrigins([]string{"https://wallet.example.com"}))

	req := httptest.NewRequest("GET", "/utility/getinfo", nil)
	req.Header.Set("Origin", "https://wallet.example.com")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertEqual(t, rr.Header().Get("Access-Control-Allow-Origin"), "https://wallet.example.com")

	req = httptest.NewRequest("GET", "/utility/getinfo", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	testutils.AssertEqual(t, rr.Header().Get("Access-Control-Allow-Origin"), "")
}

func TestCallJournal(t *testing.T) {
	journal := newTestJournal(t)
	server, _ := newTestServer(t, WithJournal(journal))

	testutils.AssertStatus(t, get(t, server, "/utility/getinfo"), http.StatusOK)
	createInvoice(t, server, "journal-1")
	rr := postForm(t, server, "/payment/invoice", url.Values{"msat": {"1000"}, "label": {"journal-1"}, "description": {"test"}})
	testutils.AssertStatus(t, rr, http.StatusBadRequest)

	rr = get(t, server, "/utility/calls")
	testutils.AssertStatus(t, rr, http.StatusOK)
	var calls []db.RPCCall
	testutils.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &calls))
	testutils.AssertEqual(t, len(calls), 3)

	failed := calls[0]
	testutils.AssertEqual(t, failed.Method, "invoice")
	testutils.AssertEqual(t, failed.Route, "/payment/invoice")
	testutils.AssertEqual(t, failed.Status, http.StatusBadRequest)
	testutils.AssertEqual(t, failed.ErrorCode, clightning.CodeLabelExists)
	testutils.AssertEqual(t, calls[2].Method, "getinfo")

	rr = get(t, server, "/utility/calls?limit=1")
	testutils.AssertStatus(t, rr, http.StatusOK)
	testutils.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &calls))
	testutils.AssertEqual(t, len(calls), 1)

	for _, bad := range []string{"0", "-3", "many", "501"} {
		testutils.AssertStatus(t, get(t, server, "/utility/calls?limit="+bad), http.StatusBadRequest)
	}

	rr = get(t, server, "/utility/calls/stats")
	testutils.AssertStatus(t, rr, http.StatusOK)
	var stats []db.MethodStats
	testutils.AssertNoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	testutils.AssertEqual(t, len(stats), 2)
	testutils.AssertEqual(t, stats[1].Method, "invoice")
	testutils.AssertEqual(t, stats[1].Calls, int64(2))
	testutils.AssertEqual(t, stats[1].Failures, int64(1))

	testutils.AssertStatus(t, get(t, server, "/utility/calls/stats?hours=zero"), http.StatusBadRequest)
}

func TestCallJournalDisabled(t *testing.T) {
	server, _ := newTestServer(t)

	testutils.AssertStatus(t, get(t, server, "/utility/calls"), http.StatusNotFound)
	testutils.AssertStatus(t, get(t, server, "/utility/calls/stats"), http.StatusNotFound)
}

func TestStartShutdownMultipart(t *testing.T) {
	server, node := newTestServer(t)

	testutils.AssertNoError(t, server.Start("127.0.0.1:0"))
	if !errors.Is(server.Start("127.0.0.1:0"), ErrAlreadyStarted) {
		t.Fatal("expected ErrAlreadyStarted on second Start")
	}
	baseURL := "http://" + server.Addr()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	testutils.AssertNoError(t, mw.WriteField("msat", "1000"))
	testutils.AssertNoError(t, mw.WriteField("label", "test-invoice-multipart"))
	testutils.AssertNoError(t, mw.WriteField("description", "test"))
	testutils.AssertNoError(t, mw.Close())

	resp, err := http.Post(baseURL+"/payment/invoice", mw.FormDataContentType(), &body)
	testutils.AssertNoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, resp.StatusCode, http.StatusOK)

	var created clightning.NewInvoice
	testutils.AssertNoError(t, json.Unmarshal(raw, &created))
	testutils.AssertEqual(t, created.Label, "test-invoice-multipart")

	invoices, err := node.ListInvoices(context.Background(), "test-invoice-multipart")
	testutils.AssertNoError(t, err)
	testutils.AssertEqual(t, len(invoices), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	testutils.AssertNoError(t, server.Shutdown(ctx))
	testutils.AssertEqual(t, server.Addr(), "")
	if !errors.Is(server.Shutdown(ctx), ErrNotStarted) {
		t.Fatal("expected ErrNotStarted on second Shutdown")
	}

	// Toggle back on
	testutils.AssertNoError(t, server.Start("127.0.0.1:0"))
	resp, err = http.Get("http://" + server.Addr() + "/utility/health")
	testutils.AssertNoError(t, err)
	resp.Body.Close()
	testutils.AssertEqual(t, resp.StatusCode, http.StatusOK)
	testutils.AssertNoError(t, server.Shutdown(ctx))
}
