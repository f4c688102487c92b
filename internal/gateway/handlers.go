package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brewgator/lightning-rest/internal/clightning"
	"github.com/brewgator/lightning-rest/internal/db"
	"github.com/brewgator/lightning-rest/internal/utils"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultCallsLimit is the number of journal rows returned without ?limit
	DefaultCallsLimit = 50
	// MaxCallsLimit caps ?limit on /utility/calls
	MaxCallsLimit = 500
	// DefaultStatsHours is the window of /utility/calls/stats without ?hours
	DefaultStatsHours = 24

	maxFormMemory = 1 << 20
)

// rpcCall performs one node call and returns the value to serialize
type rpcCall func(ctx context.Context) (interface{}, error)

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	s.proxy(w, r, "getinfo", func(ctx context.Context) (interface{}, error) {
		return s.node.GetInfo(ctx)
	})
}

func (s *Server) handleListInvoice(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")

	s.proxy(w, r, "listinvoices", func(ctx context.Context) (interface{}, error) {
		return s.node.ListInvoices(ctx, label)
	})
}

func (s *Server) handleDecodePay(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		log.Warnf("handleDecodePay: failed to parse form: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	bolt11 := r.FormValue("bolt11")

	s.proxy(w, r, "decodepay", func(ctx context.Context) (interface{}, error) {
		decoded, err := s.node.DecodePay(ctx, bolt11)
		if err == nil {
			log.Debugf("handleDecodePay: decoded payment %s", utils.ShortHash(decoded.PaymentHash))
		}
		return decoded, err
	})
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		log.Warnf("handleInvoice: failed to parse form: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	msat := r.FormValue("msat")
	label := r.FormValue("label")
	description := r.FormValue("description")

	s.proxy(w, r, "invoice", func(ctx context.Context) (interface{}, error) {
		invoice, err := s.node.Invoice(ctx, msat, label, description)
		if err == nil {
			log.Infof("handleInvoice: created invoice %q for %s", label, utils.FormatMsat(msat))
		}
		return invoice, err
	})
}

func (s *Server) handleDelInvoice(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		log.Warnf("handleDelInvoice: failed to parse form: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	label := r.FormValue("label")
	status := r.FormValue("status")

	s.proxy(w, r, "delinvoice", func(ctx context.Context) (interface{}, error) {
		invoice, err := s.node.DelInvoice(ctx, label, status)
		if err == nil {
			log.Infof("handleDelInvoice: deleted %s invoice %q", status, label)
		}
		return invoice, err
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "No route for "+r.URL.Path)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, ErrJournalDisabled.Error())
		return
	}

	limit := DefaultCallsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > MaxCallsLimit {
			s.writeError(w, http.StatusBadRequest, "Invalid limit parameter. Must be a number between 1 and "+strconv.Itoa(MaxCallsLimit))
			return
		}
		limit = l
	}

	calls, err := s.journal.GetRecentRPCCalls(limit)
	if err != nil {
		log.Errorf("handleCalls: failed to get recent calls: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get recent calls")
		return
	}

	s.writeJSON(w, calls)
}

func (s *Server) handleCallStats(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, ErrJournalDisabled.Error())
		return
	}

	hours := DefaultStatsHours
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		h, err := strconv.Atoi(hoursStr)
		if err != nil || h <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid hours parameter. Must be a positive number")
			return
		}
		hours = h
	}

	stats, err := s.journal.GetRPCCallStats(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		log.Errorf("handleCallStats: failed to get call stats: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get call stats")
		return
	}

	s.writeJSON(w, stats)
}

// proxy runs call, writes its result or error and records it in the journal
func (s *Server) proxy(w http.ResponseWriter, r *http.Request, method string, call rpcCall) {
	start := time.Now()
	result, err := call(r.Context())

	var status int
	if err != nil {
		log.Warnf("[gateway] %s failed: %v", method, err)
		status = s.writeRPCError(w, err)
	} else {
		status = s.writeJSON(w, result)
	}

	s.record(r, method, status, time.Since(start), err)
}

// record adds a row to the call journal when one is configured
func (s *Server) record(r *http.Request, method string, status int, elapsed time.Duration, callErr error) {
	if s.journal == nil {
		return
	}

	call := &db.RPCCall{
		Timestamp:  time.Now(),
		Method:     method,
		Route:      r.URL.Path,
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
	}
	if callErr != nil {
		call.ErrorCode = clightning.ErrorCode(callErr)
		call.ErrorMessage = callErr.Error()
	}

	if err := s.journal.InsertRPCCall(call); err != nil {
		log.Errorf("[gateway] failed to record %s call: %v", method, err)
	}
}

// writeJSON writes data as the whole body with status 200. The body is exactly
// json.Marshal(data), with no trailing newline.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) int {
	body, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Failed to encode JSON response: %v", err)
		return s.writeError(w, http.StatusInternalServerError, "Failed to encode response")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
	return http.StatusOK
}

// writeRPCError maps a node error onto an HTTP status and error body
func (s *Server) writeRPCError(w http.ResponseWriter, err error) int {
	var rpcErr *clightning.RPCError
	if errors.As(err, &rpcErr) {
		return s.writeErrorResponse(w, http.StatusBadRequest, ErrorResponse{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
		})
	}

	return s.writeErrorResponse(w, http.StatusBadGateway, ErrorResponse{
		Code:    clightning.CodeTransportFailure,
		Message: err.Error(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) int {
	return s.writeErrorResponse(w, status, ErrorResponse{Code: status, Message: message})
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("Failed to encode error response (status %d, message %q): %v", status, resp.Message, err)
	}
	return status
}

// parseForm reads url-encoded and multipart/form-data bodies alike
func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}
