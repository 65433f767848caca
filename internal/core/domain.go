package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

type (
	TransactionType string

	// Date is a calendar day serialised as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	// Month identifies a calendar month as YYYY-MM.
	Month string

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          string          `json:"id"`
		Date        Date            `json:"date"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
	}

	// CategoryBudget is the plan for one category in one month.
	// ManualActual nil means the actual spend is derived from transactions;
	// a non-nil value (zero included) replaces the derived figure.
	CategoryBudget struct {
		Category     string `json:"category"`
		Budgeted     Money  `json:"budgeted"`
		ManualActual *Money `json:"manualActual,omitempty"`
	}

	MonthlyBudget struct {
		Month   Month            `json:"month"`
		Budgets []CategoryBudget `json:"budgets"`
	}

	SavingsGoal struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Target  Money  `json:"target"`
		Current Money  `json:"current"`
		Color   string `json:"color"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyName     = errors.New("empty name")
)

// ParseDate parses a strict YYYY-MM-DD calendar day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MonthKey returns the YYYY-MM month the day belongs to.
func (d Date) MonthKey() Month {
	return MonthOf(d.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseMonth validates a YYYY-MM key.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(monthLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month(s), nil
}

// MonthOf returns the month key for t.
func MonthOf(t time.Time) Month {
	return Month(t.Format(monthLayout))
}

func (m Month) Validate() error {
	_, err := ParseMonth(string(m))
	return err
}

func (m Month) String() string {
	return string(m)
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants of a stored transaction.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// InMonth reports whether the transaction falls in month m.
func (t Transaction) InMonth(m Month) bool {
	return t.Date.MonthKey() == m
}

// Actual returns the override when one is set, otherwise derived.
func (b CategoryBudget) Actual(derived Money) Money {
	if b.ManualActual != nil {
		return *b.ManualActual
	}
	return derived
}

// Find returns the entry for category, if any.
func (mb MonthlyBudget) Find(category string) (CategoryBudget, bool) {
	for _, b := range mb.Budgets {
		if b.Category == category {
			return b, true
		}
	}
	return CategoryBudget{}, false
}

// TotalBudgeted sums the planned amounts of the month.
func (mb MonthlyBudget) TotalBudgeted() Money {
	var total Money
	for _, b := range mb.Budgets {
		total = total.Add(b.Budgeted)
	}
	return total
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.Target.Cents <= 0 {
		return ErrInvalidAmount
	}
	if g.Current.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}
