package http

import (
	"net/http"
	"strings"
	"sync/atomic"

	"zenbudget/internal/core"
	"zenbudget/internal/log"
	"zenbudget/internal/reconcile"
	"zenbudget/internal/services"
)

const corruptStateNotice = "Stored data could not be read. The app started from the default budget."

type stateResponse struct {
	core.State
	Revision uint64 `json:"revision"`
	Notice   string `json:"notice,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{State: s.svc.State(), Revision: s.svc.Revision()}
	if s.svc.LoadNotice() != nil {
		resp.Notice = corruptStateNotice
	}
	writeJSON(w, http.StatusOK, resp)
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
	Notice     string   `json:"notice,omitempty"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: s.svc.Categories()})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	cats, err := s.svc.AddCategory(r.Context(), sanitizeInput(req.Name))
	if s.failed(w, r, log.OpCreate, err) {
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: cats, Notice: s.noticeFor(err)})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	month, ok := queryMonth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": s.svc.Transactions(month)})
}

type createTransactionRequest struct {
	reconcile.Candidate
	AutoCategorize bool `json:"autoCategorize"`
}

type createTransactionResponse struct {
	Transaction   core.Transaction `json:"transaction"`
	NewCategories []string         `json:"newCategories"`
	Notice        string           `json:"notice,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, grown, err := s.svc.AddTransaction(r.Context(), req.Candidate, req.AutoCategorize)
	if s.failed(w, r, log.OpCreate, err) {
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsAdded, 1)
	if grown == nil {
		grown = []string{}
	}
	writeJSON(w, http.StatusCreated, createTransactionResponse{
		Transaction:   t,
		NewCategories: grown,
		Notice:        s.noticeFor(err),
	})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	err := s.svc.DeleteTransaction(r.Context(), id)
	if s.failed(w, r, log.OpDelete, err) {
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsDeleted, 1)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "notice": s.noticeFor(err)})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.csvMaxBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	batch, err := reconcile.ParseCandidates(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid import batch", Details: err.Error()})
		return
	}
	rep, err := s.svc.Import(r.Context(), batch)
	s.writeImport(w, r, rep, err)
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.csvMaxBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	text, err := csvText(r, body)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	rep, err := s.svc.ImportCSV(r.Context(), text)
	s.writeImport(w, r, rep, err)
}

func (s *Server) writeImport(w http.ResponseWriter, r *http.Request, rep reconcile.Report, err error) {
	if s.failed(w, r, log.OpImport, err) {
		return
	}
	resp := newImportResponse(rep)
	resp.Notice = s.noticeFor(err)
	s.appMetrics.recordImport(resp.Imported, resp.Duplicates, resp.Rejected)
	writeJSON(w, http.StatusOK, resp)
}

type monthResponse struct {
	services.MonthView
	Month  core.Month `json:"month"`
	Notice string     `json:"notice,omitempty"`
}

func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Month(r.Context(), month)
	if s.failed(w, r, log.OpRead, err) {
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{MonthView: view, Month: month, Notice: s.noticeFor(err)})
}

type updateBudgetRequest struct {
	Budgeted     core.Money  `json:"budgeted"`
	ManualActual *core.Money `json:"manualActual"`
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	var req updateBudgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mb, err := s.svc.UpdateBudget(r.Context(), services.UpdateBudget{
		Month:        month,
		Category:     sanitizeInput(r.PathValue("category")),
		Budgeted:     req.Budgeted,
		ManualActual: req.ManualActual,
	})
	if s.failed(w, r, log.OpUpdate, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budget": mb, "notice": s.noticeFor(err)})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"trend": s.svc.Trend()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.svc.History()})
}
