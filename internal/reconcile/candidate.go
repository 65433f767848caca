// Package reconcile turns untrusted candidate transactions (AI-parsed CSV
// rows or manual form entries) into stored transactions.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"zenbudget/internal/core"
)

var (
	ErrInvalidDate   = errors.New("date is not a YYYY-MM-DD string")
	ErrInvalidAmount = errors.New("amount is not a positive number")
	ErrInvalidType   = errors.New("type is not expense or income")
	ErrNotAnArray    = errors.New("candidates are not a JSON array")
)

// Candidate is a transaction proposal whose fields have not been checked.
// Each field keeps its raw JSON so a wrongly typed value is rejected instead
// of failing the whole batch at decode time.
type Candidate struct {
	Date        json.RawMessage `json:"date,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	Amount      json.RawMessage `json:"amount,omitempty"`
	Type        json.RawMessage `json:"type,omitempty"`
	Category    json.RawMessage `json:"category,omitempty"`
}

// NewCandidate builds a candidate from form fields. amount accepts a dot or
// comma separator and becomes a JSON number when it parses, otherwise a
// string so validation rejects it.
func NewCandidate(date, description, amount string, typ core.TransactionType, category string) Candidate {
	c := Candidate{
		Date:        mustString(date),
		Description: mustString(description),
		Type:        mustString(string(typ)),
		Category:    mustString(category),
	}
	amount = strings.TrimSpace(amount)
	if d, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ".")); err == nil {
		c.Amount = json.RawMessage(d.String())
	} else {
		c.Amount = mustString(amount)
	}
	return c
}

// DescriptionText returns the description when it is a JSON string.
func (c Candidate) DescriptionText() string {
	s, _ := stringField(c.Description)
	return strings.TrimSpace(s)
}

// CategoryText returns the trimmed category when it is a JSON string.
func (c Candidate) CategoryText() string {
	s, _ := stringField(c.Category)
	return strings.TrimSpace(s)
}

// WithCategory returns a copy of c with its category replaced.
func (c Candidate) WithCategory(name string) Candidate {
	c.Category = mustString(name)
	return c
}

// ParseCandidates decodes a JSON array of candidates. Elements that are not
// objects become empty candidates and are rejected later, in order.
func ParseCandidates(data []byte) ([]Candidate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Candidate{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnArray, err)
	}
	out := make([]Candidate, 0, len(raw))
	for _, item := range raw {
		var c Candidate
		if err := json.Unmarshal(item, &c); err != nil {
			c = Candidate{}
		}
		out = append(out, c)
	}
	return out, nil
}

// Validate checks a candidate and returns the transaction it describes,
// without an ID.
func Validate(c Candidate) (core.Transaction, error) {
	var t core.Transaction

	dateStr, ok := stringField(c.Date)
	if !ok {
		return t, ErrInvalidDate
	}
	date, err := core.ParseDate(dateStr)
	if err != nil {
		return t, fmt.Errorf("%w: %q", ErrInvalidDate, dateStr)
	}

	amount, err := amountField(c.Amount)
	if err != nil {
		return t, err
	}

	typ, ok := stringField(c.Type)
	if !ok || !core.TransactionType(typ).Valid() {
		return t, ErrInvalidType
	}

	desc, _ := stringField(c.Description)
	category, _ := stringField(c.Category)
	category = strings.TrimSpace(category)
	if category == "" {
		category = core.CategoryOther
	}

	t = core.Transaction{
		Date:        date,
		Description: strings.TrimSpace(desc),
		Category:    category,
		Amount:      amount,
		Type:        core.TransactionType(typ),
	}
	return t, nil
}

func amountField(raw json.RawMessage) (core.Money, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return core.Money{}, ErrInvalidAmount
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return core.Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return core.Money{}, ErrInvalidAmount
	}
	// Amounts are compared exactly, so sub-cent precision is refused rather
	// than rounded into another amount.
	if !d.Equal(d.Round(2)) {
		return core.Money{}, fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidAmount, n)
	}
	cents, err := core.CentsFromDecimal(d)
	if err != nil || cents <= 0 {
		return core.Money{}, ErrInvalidAmount
	}
	return core.Money{Cents: cents}, nil
}

func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func mustString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
