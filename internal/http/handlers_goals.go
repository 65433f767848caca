package http

import (
	"net/http"
	"strings"

	"zenbudget/internal/core"
	"zenbudget/internal/log"
	"zenbudget/internal/services"
)

type goalResponse struct {
	Goal   services.GoalView `json:"goal"`
	Notice string            `json:"notice,omitempty"`
}

func newGoalResponse(g core.SavingsGoal, notice string) goalResponse {
	return goalResponse{
		Goal:   services.GoalView{SavingsGoal: g, Percent: core.GoalPercent(g)},
		Notice: notice,
	}
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string     `json:"name"`
		Target core.Money `json:"target"`
		Color  string     `json:"color"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.svc.AddGoal(r.Context(), services.AddGoal{
		Name:   sanitizeInput(req.Name),
		Target: req.Target,
		Color:  sanitizeInput(req.Color),
	})
	if s.failed(w, r, log.OpCreate, err) {
		return
	}
	writeJSON(w, http.StatusCreated, newGoalResponse(g, s.noticeFor(err)))
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount core.Money `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.svc.Contribute(r.Context(), strings.TrimSpace(r.PathValue("id")), req.Amount)
	if s.failed(w, r, log.OpUpdate, err) {
		return
	}
	writeJSON(w, http.StatusOK, newGoalResponse(g, s.noticeFor(err)))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Reset(r.Context())
	if s.failed(w, r, log.OpReset, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "notice": s.noticeFor(err)})
}
