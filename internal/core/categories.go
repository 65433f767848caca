package core

import "strings"

const (
	CategoryIncome = "Income"
	CategoryOther  = "Other"

	defaultCategoryColor = "#94a3b8"
)

// CoreCategories is the fixed, ordered set every state starts with.
var CoreCategories = []string{
	"Housing & Utilities",
	"Insurance & Auto",
	"Groceries & Household",
	"Dining & Entertainment",
	"Family / Kids / Personal",
	"Medical / Charitable",
	"Retail / Shopping",
	"Travel / Events",
	"Debt Payments",
	"Savings / Emergency Fund",
	CategoryOther,
}

// DefaultBudgets seeds a new month. Categories not listed start at zero.
var DefaultBudgets = map[string]Money{
	"Housing & Utilities":      NewMoney(3000, 0),
	"Insurance & Auto":         NewMoney(500, 0),
	"Groceries & Household":    NewMoney(1000, 0),
	"Dining & Entertainment":   NewMoney(500, 0),
	"Family / Kids / Personal": NewMoney(1000, 0),
	"Medical / Charitable":     NewMoney(200, 0),
	"Retail / Shopping":        NewMoney(400, 0),
	"Travel / Events":          {},
	"Debt Payments":            NewMoney(500, 0),
	"Savings / Emergency Fund": NewMoney(500, 0),
	CategoryOther:              {},
}

var categoryColors = map[string]string{
	"Housing & Utilities":      "#3b82f6",
	"Insurance & Auto":         "#f59e0b",
	"Groceries & Household":    "#10b981",
	"Dining & Entertainment":   "#ec4899",
	"Family / Kids / Personal": "#8b5cf6",
	"Medical / Charitable":     "#ef4444",
	"Retail / Shopping":        "#6366f1",
	"Travel / Events":          "#14b8a6",
	"Debt Payments":            "#64748b",
	"Savings / Emergency Fund": "#f43f5e",
	CategoryIncome:             "#10b981",
	CategoryOther:              defaultCategoryColor,
}

// CategoryColor returns the display color for a category.
func CategoryColor(category string) string {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	return defaultCategoryColor
}

// DefaultBudget returns the seeded plan for a category.
func DefaultBudget(category string) Money {
	return DefaultBudgets[category]
}

// IsReservedCategory reports whether name is never added as a custom category.
func IsReservedCategory(name string) bool {
	return name == CategoryIncome || name == CategoryOther
}

// MergeCategories returns core followed by custom, first occurrence wins.
func MergeCategories(custom []string) []string {
	all := make([]string, 0, len(CoreCategories)+len(custom))
	seen := make(map[string]struct{}, cap(all))
	for _, list := range [][]string{CoreCategories, custom} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			all = append(all, c)
		}
	}
	return all
}

// CategorySet answers membership over the known categories of a state and
// grows the custom list without duplicates.
type CategorySet struct {
	known  map[string]struct{}
	custom []string
}

// NewCategorySet indexes core plus the given custom categories.
func NewCategorySet(custom []string) *CategorySet {
	s := &CategorySet{
		known:  make(map[string]struct{}, len(CoreCategories)+len(custom)),
		custom: append([]string(nil), custom...),
	}
	for _, c := range MergeCategories(custom) {
		s.known[c] = struct{}{}
	}
	return s
}

func (s *CategorySet) Has(name string) bool {
	_, ok := s.known[name]
	return ok
}

// Grow appends name to the custom list when it is new and not reserved.
// It reports whether the set changed.
func (s *CategorySet) Grow(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || IsReservedCategory(name) || s.Has(name) {
		return false
	}
	s.known[name] = struct{}{}
	s.custom = append(s.custom, name)
	return true
}

// Custom returns the grown custom list.
func (s *CategorySet) Custom() []string {
	return s.custom
}
