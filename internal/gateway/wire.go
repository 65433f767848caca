// Package gateway implements the AI advisory endpoint: insights on a month,
// category suggestions and bank CSV extraction, all behind one
// action-dispatched POST contract.
package gateway

import (
	"encoding/json"

	"zenbudget/internal/core"
)

type Action string

const (
	ActionInsights   Action = "insights"
	ActionCategorize Action = "categorize"
	ActionParseCSV   Action = "parseCsv"
)

// Request is the body of every gateway call.
type Request struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type (
	InsightsPayload struct {
		Transactions   []core.Transaction   `json:"transactions"`
		MonthlyBudgets []core.MonthlyBudget `json:"monthlyBudgets"`
		CurrentMonth   core.Month           `json:"currentMonth"`
	}

	CategorizePayload struct {
		Description   string   `json:"description"`
		AllCategories []string `json:"allCategories"`
	}

	ParseCSVPayload struct {
		CSVText       string   `json:"csvText"`
		AllCategories []string `json:"allCategories"`
	}
)

type (
	InsightsResponse struct {
		Text string `json:"text"`
	}

	CategorizeResponse struct {
		Category string `json:"category"`
	}

	// ParseCSVResponse carries the model's candidates untouched; callers
	// validate them through the import pipeline.
	ParseCSVResponse struct {
		Transactions json.RawMessage `json:"transactions"`
	}

	ErrorResponse struct {
		Error   string `json:"error"`
		Details string `json:"details,omitempty"`
	}
)
