package core

import (
	"math"
	"testing"
)

func tx(id, date, cat string, cents int64, typ TransactionType) Transaction {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return Transaction{ID: id, Date: d, Description: id, Category: cat, Amount: Money{Cents: cents}, Type: typ}
}

func sampleState() State {
	override := NewMoney(40, 0)
	return State{
		Transactions: []Transaction{
			tx("salary", "2025-11-01", CategoryIncome, 950000, Income),
			tx("kroger", "2025-11-28", "Groceries & Household", 2508, Expense),
			tx("aldi", "2025-11-21", "Groceries & Household", 8478, Expense),
			tx("dinner", "2025-11-16", "Dining & Entertainment", 20471, Expense),
			tx("vet", "2025-11-10", "Pets", 5000, Expense),
			tx("october", "2025-10-15", "Groceries & Household", 10000, Expense),
		},
		MonthlyBudgets: []MonthlyBudget{{
			Month: "2025-11",
			Budgets: []CategoryBudget{
				{Category: "Groceries & Household", Budgeted: NewMoney(100, 0)},
				{Category: "Dining & Entertainment", Budgeted: NewMoney(500, 0), ManualActual: &override},
				{Category: "Pets", Budgeted: NewMoney(40, 0)},
			},
		}},
		CustomCategories: []string{"Pets"},
	}
}

func TestMonthlyTotals(t *testing.T) {
	s := sampleState()
	if got := MonthlyIncome(s.Transactions, "2025-11"); got.Cents != 950000 {
		t.Fatalf("MonthlyIncome = %d, want 950000", got.Cents)
	}
	if got := MonthlyExpenses(s.Transactions, "2025-11"); got.Cents != 2508+8478+20471+5000 {
		t.Fatalf("MonthlyExpenses = %d", got.Cents)
	}
	if got := MonthlyIncome(s.Transactions, "2025-12"); !got.IsZero() {
		t.Fatalf("MonthlyIncome for empty month = %d", got.Cents)
	}
}

func TestCategoryActual(t *testing.T) {
	s := sampleState()
	tests := []struct {
		name     string
		category string
		want     int64
	}{
		{"derived from transactions", "Groceries & Household", 2508 + 8478},
		{"manual override wins", "Dining & Entertainment", 4000},
		{"custom category", "Pets", 5000},
		{"no spend", "Debt Payments", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryActual(s, "2025-11", tt.category); got.Cents != tt.want {
				t.Fatalf("CategoryActual(%q) = %d, want %d", tt.category, got.Cents, tt.want)
			}
		})
	}
}

func TestZeroOverrideForcesZero(t *testing.T) {
	s := sampleState()
	zero := Money{}
	s.MonthlyBudgets[0].Budgets[0].ManualActual = &zero
	if got := CategoryActual(s, "2025-11", "Groceries & Household"); !got.IsZero() {
		t.Fatalf("zero override should force zero, got %d", got.Cents)
	}
}

func TestBudgetUtilization(t *testing.T) {
	if got := BudgetUtilization(NewMoney(50, 0), NewMoney(200, 0)); got != 25 {
		t.Fatalf("BudgetUtilization = %v, want 25", got)
	}
	if got := BudgetUtilization(NewMoney(50, 0), Money{}); got != 0 {
		t.Fatalf("BudgetUtilization without plan = %v, want 0", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		actual, budgeted int64
		want             CategoryStatus
	}{
		{5000, 10000, StatusOK},
		{8500, 10000, StatusOK},
		{8600, 10000, StatusWarning},
		{10000, 10000, StatusWarning},
		{10001, 10000, StatusOver},
		{1, 0, StatusOver},
		{0, 0, StatusOK},
	}
	for _, tt := range tests {
		if got := StatusFor(Money{Cents: tt.actual}, Money{Cents: tt.budgeted}); got != tt.want {
			t.Fatalf("StatusFor(%d, %d) = %s, want %s", tt.actual, tt.budgeted, got, tt.want)
		}
	}
}

func TestBuildMonthOverview(t *testing.T) {
	s := sampleState()
	ov := BuildMonthOverview(s, "2025-11")

	if ov.Income.Cents != 950000 {
		t.Fatalf("Income = %d", ov.Income.Cents)
	}
	if ov.Budgeted.Cents != 64000 {
		t.Fatalf("Budgeted = %d, want 64000", ov.Budgeted.Cents)
	}
	wantActual := int64(2508 + 8478 + 4000 + 5000)
	if ov.Actual.Cents != wantActual {
		t.Fatalf("Actual = %d, want %d", ov.Actual.Cents, wantActual)
	}
	if ov.Balance.Cents != 950000-wantActual {
		t.Fatalf("Balance = %d", ov.Balance.Cents)
	}
	wantUtil := float64(wantActual) / 64000 * 100
	if math.Abs(ov.Utilization-wantUtil) > 1e-9 {
		t.Fatalf("Utilization = %v, want %v", ov.Utilization, wantUtil)
	}
	if ov.TransactionCount != 5 {
		t.Fatalf("TransactionCount = %d, want 5", ov.TransactionCount)
	}
	if len(ov.Categories) != len(CoreCategories)+1 {
		t.Fatalf("rows = %d, want %d", len(ov.Categories), len(CoreCategories)+1)
	}
	for _, row := range ov.Categories {
		if row.Category == "Pets" && row.Status != StatusOver {
			t.Fatalf("Pets status = %s, want over", row.Status)
		}
		if row.Category == "Dining & Entertainment" && !row.Manual {
			t.Fatalf("Dining row should be marked manual")
		}
	}
}

func TestCategoryHealthSkipsIdleCategories(t *testing.T) {
	rows := CategoryHealth(sampleState(), "2025-11")
	if len(rows) != 3 {
		t.Fatalf("CategoryHealth rows = %d, want 3", len(rows))
	}
}

func TestSpendingMix(t *testing.T) {
	mix := SpendingMix(sampleState(), "2025-11")
	if len(mix) != 3 {
		t.Fatalf("SpendingMix len = %d, want 3", len(mix))
	}
	if mix[0].Name != "Dining & Entertainment" {
		t.Fatalf("largest slice = %s", mix[0].Name)
	}
}

func TestTrend(t *testing.T) {
	s := sampleState()
	s.MonthlyBudgets = append(s.MonthlyBudgets, MonthlyBudget{Month: "2025-12"})
	points := Trend(s)
	if len(points) != 3 {
		t.Fatalf("Trend len = %d, want 3", len(points))
	}
	if points[0].Month != "2025-10" || points[2].Month != "2025-12" {
		t.Fatalf("Trend order = %v", points)
	}
	if points[1].Net.Cents != 950000-(2508+8478+20471+5000) {
		t.Fatalf("November net = %d", points[1].Net.Cents)
	}
}

func TestTrendKeepsLatestTwelveMonths(t *testing.T) {
	var s State
	for m := 1; m <= 12; m++ {
		s.Transactions = append(s.Transactions, Transaction{Date: NewDate(2024, m, 1), Amount: Money{Cents: 1}, Type: Expense})
		s.Transactions = append(s.Transactions, Transaction{Date: NewDate(2025, m, 1), Amount: Money{Cents: 1}, Type: Expense})
	}
	points := Trend(s)
	if len(points) != 12 {
		t.Fatalf("Trend len = %d, want 12", len(points))
	}
	if points[0].Month != "2025-01" {
		t.Fatalf("first month = %s, want 2025-01", points[0].Month)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := sampleState()
	s.MonthlyBudgets = append(s.MonthlyBudgets, MonthlyBudget{Month: "2025-10"}, MonthlyBudget{Month: "2025-12"})
	h := History(s)
	if len(h) != 3 || h[0].Month != "2025-12" || h[2].Month != "2025-10" {
		t.Fatalf("History = %v", h)
	}
}

func TestGoalPercent(t *testing.T) {
	g := SavingsGoal{Target: NewMoney(100, 0), Current: NewMoney(150, 0)}
	if got := GoalPercent(g); got != 100 {
		t.Fatalf("GoalPercent = %v, want 100", got)
	}
}
