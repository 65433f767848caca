package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"zenbudget/internal/log"
)

const defaultMaxBody = 1 << 20

// Handler serves the gateway wire contract on a single POST endpoint.
type Handler struct {
	svc     *Service
	maxBody int64
}

// NewHandler returns the endpoint handler. A nil svc means no API key is
// configured and every call fails with 500.
func NewHandler(svc *Service, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Handler{svc: svc, maxBody: maxBody}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}
	if h.svc == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Missing GEMINI_API_KEY (set it in the server environment)"})
		return
	}

	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large"})
			return
		}
		// an unreadable body carries no action
		req = Request{}
	}

	resp, err := h.svc.Do(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrMissingAction):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Missing action"})
	case errors.Is(err, ErrUnknownAction):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Unknown action: " + string(req.Action)})
	case errors.Is(err, ErrBadPayload):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid payload", Details: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "Gemini request failed",
			log.FieldAction, req.Action,
			log.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Gemini request failed", Details: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
