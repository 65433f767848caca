package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"zenbudget/internal/core"
)

const maxJSONBody = 1 << 20

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeJSON reads a JSON object into v and writes the error response when
// it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := readBody(w, r, maxJSONBody)
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		writeBodyError(w, err)
		return false
	}
	return true
}

func writeBodyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, errEmptyBody):
		writeError(w, http.StatusBadRequest, "Request body is empty")
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Details: err.Error()})
	}
}

// pathMonth parses the {month} path segment.
func pathMonth(w http.ResponseWriter, r *http.Request) (core.Month, bool) {
	m, err := core.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid month", Details: err.Error()})
		return "", false
	}
	return m, true
}

// queryMonth parses the optional month query parameter. An empty value
// means every month.
func queryMonth(w http.ResponseWriter, r *http.Request) (core.Month, bool) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return "", true
	}
	m, err := core.ParseMonth(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid month", Details: err.Error()})
		return "", false
	}
	return m, true
}

// csvText extracts the statement from a raw text body or a {"csvText": ...}
// JSON object.
func csvText(r *http.Request, body []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return string(body), nil
	}
	var req struct {
		CSVText string `json:"csvText"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.CSVText) == "" {
		return "", errEmptyBody
	}
	return req.CSVText, nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
