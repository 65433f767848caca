package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"zenbudget/internal/core"
)

const (
	csvSnippetLimit = 8000

	fallbackCategory = core.CategoryOther
	noInsightsText   = "No insights available at the moment."

	advisorInstruction = "You are a professional financial advisor specializing in family budgeting. Keep advice practical, encouraging, and brief."
)

var (
	ErrMissingAction = errors.New("missing action")
	ErrUnknownAction = errors.New("unknown action")
	ErrBadPayload    = errors.New("invalid payload")
	ErrBadResponse   = errors.New("model returned malformed JSON")
)

var (
	categorySchema = &Schema{
		Type:       TypeObject,
		Properties: map[string]*Schema{"category": {Type: TypeString}},
		Required:   []string{"category"},
	}

	transactionsSchema = &Schema{
		Type: TypeArray,
		Items: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"date":        {Type: TypeString, Description: "YYYY-MM-DD format"},
				"description": {Type: TypeString},
				"amount":      {Type: TypeNumber},
				"type":        {Type: TypeString, Enum: []string{"expense", "income"}},
				"category":    {Type: TypeString},
			},
			Required: []string{"date", "description", "amount", "type", "category"},
		},
	}
)

// Backend answers the three gateway actions. Service runs them in process;
// Client forwards them to a remote gateway.
type Backend interface {
	Insights(ctx context.Context, p InsightsPayload) (string, error)
	Categorize(ctx context.Context, p CategorizePayload) (string, error)
	ParseCSV(ctx context.Context, p ParseCSVPayload) (json.RawMessage, error)
}

// Service builds the prompts and interprets the model answers.
type Service struct {
	gen Generator
}

func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

// Insights returns three budgeting tips for p.CurrentMonth.
func (s *Service) Insights(ctx context.Context, p InsightsPayload) (string, error) {
	type txView struct {
		Category string               `json:"category"`
		Amount   core.Money           `json:"amount"`
		Type     core.TransactionType `json:"type"`
		Desc     string               `json:"desc"`
	}
	txs := []txView{}
	for _, t := range p.Transactions {
		if p.CurrentMonth != "" && !t.InMonth(p.CurrentMonth) {
			continue
		}
		txs = append(txs, txView{Category: t.Category, Amount: t.Amount, Type: t.Type, Desc: t.Description})
	}
	budgets := []core.CategoryBudget{}
	for _, mb := range p.MonthlyBudgets {
		if mb.Month == p.CurrentMonth {
			budgets = mb.Budgets
			break
		}
	}

	prompt := fmt.Sprintf(`Analyze my family budget for %s.

Budget Plan:
%s

Actual Transactions:
%s

Provide 3 concise, actionable financial tips based on this data. Focus on overspending and potential savings.`,
		p.CurrentMonth, compactJSON(budgets), compactJSON(txs))

	text, err := s.gen.Generate(ctx, GenerateRequest{
		Tier:              TierPro,
		Prompt:            prompt,
		SystemInstruction: advisorInstruction,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return noInsightsText, nil
	}
	return text, nil
}

// Categorize maps a description onto one of p.AllCategories.
func (s *Service) Categorize(ctx context.Context, p CategorizePayload) (string, error) {
	prompt := fmt.Sprintf(`Categorize this transaction description into one of these: %s. Description: "%s"`,
		strings.Join(p.AllCategories, ", "), p.Description)

	text, err := s.gen.Generate(ctx, GenerateRequest{
		Tier:   TierFlash,
		Prompt: prompt,
		Schema: categorySchema,
	})
	if err != nil {
		return "", err
	}
	raw := extractJSON(text)
	if raw == "" {
		return fallbackCategory, nil
	}
	var out CategorizeResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if out.Category == "" {
		return fallbackCategory, nil
	}
	return out.Category, nil
}

// ParseCSV extracts candidate transactions from the first 8000 characters
// of a bank export. The result is an unvalidated JSON array.
func (s *Service) ParseCSV(ctx context.Context, p ParseCSVPayload) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`The following is a raw text from a bank CSV file. Parse it accurately into structured transactions.

STRICT RULES:
1. Date: Convert to YYYY-MM-DD. If format is ambiguous (e.g. 01/02/2024), assume MM/DD/YYYY.
2. Amount: Must be a positive decimal.
3. Type: 'expense' for money out, 'income' for money in.
4. Category: Map to one of: %s.
5. Smart Mapping:
   - Look for 'Description', 'Payee', or 'Memo' for the description.
   - Look for 'Amount', 'Debit', 'Credit', 'Value' for the price.
   - If there's a 'Debit' and 'Credit' column, use whichever has a value.
6. Filtering: Ignore pending transactions or those with zero value.

CSV Data Snippet:
%s`, strings.Join(p.AllCategories, ", "), truncate(p.CSVText, csvSnippetLimit))

	text, err := s.gen.Generate(ctx, GenerateRequest{
		Tier:   TierPro,
		Prompt: prompt,
		Schema: transactionsSchema,
	})
	if err != nil {
		return nil, err
	}
	raw := extractJSON(text)
	if raw == "" {
		return json.RawMessage("[]"), nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, ErrBadResponse
	}
	return json.RawMessage(raw), nil
}

// Do dispatches a wire request and returns the response body value.
func (s *Service) Do(ctx context.Context, req Request) (any, error) {
	switch req.Action {
	case "":
		return nil, ErrMissingAction
	case ActionInsights:
		var p InsightsPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		text, err := s.Insights(ctx, p)
		if err != nil {
			return nil, err
		}
		return InsightsResponse{Text: text}, nil
	case ActionCategorize:
		var p CategorizePayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		cat, err := s.Categorize(ctx, p)
		if err != nil {
			return nil, err
		}
		return CategorizeResponse{Category: cat}, nil
	case ActionParseCSV:
		var p ParseCSVPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		txs, err := s.ParseCSV(ctx, p)
		if err != nil {
			return nil, err
		}
		return ParseCSVResponse{Transactions: txs}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// extractJSON strips markdown code fences and surrounding prose from a model
// answer and returns the outermost JSON object or array, or "".
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// compactJSON marshals v without HTML escaping so category names such as
// "Groceries & Household" reach the model verbatim.
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "[]"
	}
	return strings.TrimRight(buf.String(), "\n")
}
