package reconcile

import (
	"strings"

	"github.com/google/uuid"

	"zenbudget/internal/core"
)

// Rejection records a candidate that failed validation.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Report describes the outcome of one import.
type Report struct {
	Accepted      []core.Transaction `json:"accepted"`
	Duplicates    []core.Transaction `json:"duplicates"`
	Rejected      []Rejection        `json:"rejected"`
	NewCategories []string           `json:"newCategories"`
}

// Imported is the number of transactions added to the store.
func (r Report) Imported() int {
	return len(r.Accepted)
}

// Reconciler applies candidate batches to a state. It never mutates the
// state it is given.
type Reconciler struct {
	newID func() string
}

// New returns a Reconciler. A nil newID uses random UUIDs.
func New(newID func() string) *Reconciler {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Reconciler{newID: newID}
}

type dedupKey struct {
	date        string
	cents       int64
	description string
}

func keyOf(t core.Transaction) dedupKey {
	return dedupKey{
		date:        t.Date.String(),
		cents:       t.Amount.Cents,
		description: strings.ToLower(t.Description),
	}
}

// Import validates the batch, drops candidates already stored (same date,
// same amount, same description ignoring case), assigns fresh IDs, grows the
// custom categories and returns the resulting state.
//
// Candidates are only compared against transactions stored before the call,
// so two identical rows inside one batch are both kept.
func (r *Reconciler) Import(s core.State, batch []Candidate) (core.State, Report) {
	next := s.Clone()
	rep := Report{
		Accepted:      []core.Transaction{},
		Duplicates:    []core.Transaction{},
		Rejected:      []Rejection{},
		NewCategories: []string{},
	}

	stored := make(map[dedupKey]struct{}, len(s.Transactions))
	for _, t := range s.Transactions {
		stored[keyOf(t)] = struct{}{}
	}
	cats := core.NewCategorySet(next.CustomCategories)

	for i, c := range batch {
		t, err := Validate(c)
		if err != nil {
			rep.Rejected = append(rep.Rejected, Rejection{Index: i, Reason: err.Error(), Err: err})
			continue
		}
		if _, dup := stored[keyOf(t)]; dup {
			rep.Duplicates = append(rep.Duplicates, t)
			continue
		}
		t.ID = r.newID()
		if cats.Grow(t.Category) {
			rep.NewCategories = append(rep.NewCategories, t.Category)
		}
		next.Transactions = append(next.Transactions, t)
		rep.Accepted = append(rep.Accepted, t)
	}

	next.CustomCategories = cats.Custom()
	return next, rep
}

// Add records a single manual entry. It applies the same validation and
// category growth as Import but skips duplicate detection.
func (r *Reconciler) Add(s core.State, c Candidate) (core.State, core.Transaction, []string, error) {
	t, err := Validate(c)
	if err != nil {
		return s, core.Transaction{}, nil, err
	}
	next := s.Clone()
	t.ID = r.newID()

	var grown []string
	cats := core.NewCategorySet(next.CustomCategories)
	if cats.Grow(t.Category) {
		grown = append(grown, t.Category)
	}
	next.CustomCategories = cats.Custom()
	next.Transactions = append(next.Transactions, t)
	return next, t, grown, nil
}
