package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"zenbudget/internal/core"
	"zenbudget/internal/gateway"
	"zenbudget/internal/log"
	"zenbudget/internal/reconcile"
	"zenbudget/internal/services"
)

const (
	saveFailedNotice        = "Your changes are applied but could not be saved. They will be lost on restart."
	statementUnreadableNote = "The bank statement could not be read. No transactions were imported."
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ImportResponse summarises one import.
type ImportResponse struct {
	Imported      int                   `json:"imported"`
	Duplicates    int                   `json:"duplicates"`
	Rejected      int                   `json:"rejected"`
	NewCategories []string              `json:"newCategories"`
	Rejections    []reconcile.Rejection `json:"rejections,omitempty"`
	Notice        string                `json:"notice,omitempty"`
}

func newImportResponse(rep reconcile.Report) ImportResponse {
	resp := ImportResponse{
		Imported:      rep.Imported(),
		Duplicates:    len(rep.Duplicates),
		Rejected:      len(rep.Rejected),
		NewCategories: rep.NewCategories,
		Rejections:    rep.Rejected,
	}
	if resp.NewCategories == nil {
		resp.NewCategories = []string{}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// noticeFor turns a save failure or an unreadable statement into the notice
// shown next to a successful result. Any other error yields an empty notice.
func (s *Server) noticeFor(err error) string {
	switch {
	case errors.Is(err, services.ErrSaveFailed):
		atomic.AddInt64(&s.appMetrics.saveFailures, 1)
		return saveFailedNotice
	case errors.Is(err, services.ErrStatementUnreadable):
		return statementUnreadableNote
	}
	return ""
}

// isNotice reports whether err accompanies a usable result.
func isNotice(err error) bool {
	return errors.Is(err, services.ErrSaveFailed) || errors.Is(err, services.ErrStatementUnreadable)
}

// failed writes the error response for err unless it is nil or only a
// notice, and reports whether it did.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	if err == nil || isNotice(err) {
		return false
	}
	s.writeServiceError(w, r, op, err)
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTransactionNotFound),
		errors.Is(err, services.ErrGoalNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAdvisorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, reconcile.ErrNotAnArray),
		errors.Is(err, core.ErrInvalidMonth):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidGoal),
		errors.Is(err, services.ErrInvalidBudget),
		errors.Is(err, reconcile.ErrInvalidDate),
		errors.Is(err, reconcile.ErrInvalidAmount),
		errors.Is(err, reconcile.ErrInvalidType),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyName):
		return http.StatusUnprocessableEntity
	}
	var remote *gateway.RemoteError
	if errors.As(err, &remote) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeServiceError logs server-side failures and writes the mapped status.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		fields := log.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()).
			WithErrorType(errorTypeFor(err, status))
		s.events.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, fields)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "Internal server error")
		return
	}
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Details: err.Error()})
}

func errorTypeFor(err error, status int) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return log.ErrorTypeNetwork
	default:
		return log.ErrorTypeInternal
	}
}
