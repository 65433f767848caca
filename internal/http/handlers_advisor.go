package http

import (
	"net/http"
	"strings"

	"zenbudget/internal/log"
)

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	text, err := s.svc.Insights(r.Context(), month)
	if s.failed(w, r, log.OpInsights, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "insights": text})
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	desc := sanitizeInput(req.Description)
	if strings.TrimSpace(desc) == "" {
		writeError(w, http.StatusUnprocessableEntity, "Description is required")
		return
	}
	category, err := s.svc.Categorize(r.Context(), desc)
	if s.failed(w, r, log.OpCategorize, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category})
}
