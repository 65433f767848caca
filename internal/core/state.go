package core

// State is the whole persisted aggregate of the application.
type State struct {
	Transactions     []Transaction   `json:"transactions"`
	MonthlyBudgets   []MonthlyBudget `json:"monthlyBudgets"`
	CustomCategories []string        `json:"customCategories"`
	Goals            []SavingsGoal   `json:"goals"`
}

// EmptyState returns a state with every collection present and empty.
func EmptyState() State {
	return State{
		Transactions:     []Transaction{},
		MonthlyBudgets:   []MonthlyBudget{},
		CustomCategories: []string{},
		Goals:            []SavingsGoal{},
	}
}

// Normalize replaces missing collections with empty ones so older
// snapshots without categories or goals load cleanly.
func (s State) Normalize() State {
	if s.Transactions == nil {
		s.Transactions = []Transaction{}
	}
	if s.MonthlyBudgets == nil {
		s.MonthlyBudgets = []MonthlyBudget{}
	}
	for i := range s.MonthlyBudgets {
		if s.MonthlyBudgets[i].Budgets == nil {
			s.MonthlyBudgets[i].Budgets = []CategoryBudget{}
		}
	}
	if s.CustomCategories == nil {
		s.CustomCategories = []string{}
	}
	if s.Goals == nil {
		s.Goals = []SavingsGoal{}
	}
	return s
}

// Clone returns a deep copy that shares no slices or pointers with s.
func (s State) Clone() State {
	out := State{
		Transactions:     append([]Transaction{}, s.Transactions...),
		MonthlyBudgets:   make([]MonthlyBudget, len(s.MonthlyBudgets)),
		CustomCategories: append([]string{}, s.CustomCategories...),
		Goals:            append([]SavingsGoal{}, s.Goals...),
	}
	for i, mb := range s.MonthlyBudgets {
		out.MonthlyBudgets[i] = mb.Clone()
	}
	return out
}

func (mb MonthlyBudget) Clone() MonthlyBudget {
	out := MonthlyBudget{Month: mb.Month, Budgets: make([]CategoryBudget, len(mb.Budgets))}
	for i, b := range mb.Budgets {
		if b.ManualActual != nil {
			v := *b.ManualActual
			b.ManualActual = &v
		}
		out.Budgets[i] = b
	}
	return out
}

// AllCategories is core followed by custom categories, without duplicates.
func (s State) AllCategories() []string {
	return MergeCategories(s.CustomCategories)
}

// Budget returns the plan for month m and its index, or -1.
func (s State) Budget(m Month) (MonthlyBudget, int) {
	for i, mb := range s.MonthlyBudgets {
		if mb.Month == m {
			return mb, i
		}
	}
	return MonthlyBudget{Month: m}, -1
}

// TransactionsIn returns the transactions dated in month m.
func (s State) TransactionsIn(m Month) []Transaction {
	var out []Transaction
	for _, t := range s.Transactions {
		if t.InMonth(m) {
			out = append(out, t)
		}
	}
	return out
}
