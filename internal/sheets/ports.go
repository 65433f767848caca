package sheets

import (
	"context"
	"errors"

	"zenbudget/internal/core"
)

// ErrRowNotFound is returned by Delete when no row carries the id.
var ErrRowNotFound = errors.New("row not found")

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Description", "Amount", "Category", "Type"}

// Ports for outbound adapters.
type (
	// TransactionWriter mirrors the transaction list into a spreadsheet,
	// one row per transaction.
	TransactionWriter interface {
		Append(ctx context.Context, txs []core.Transaction) error
		Delete(ctx context.Context, id string) error
		// Clear removes every row except the header.
		Clear(ctx context.Context) error
	}
)

// Row renders a transaction in column order.
func Row(t core.Transaction) []any {
	return []any{t.ID, t.Date.String(), t.Description, t.Amount.Float64(), t.Category, string(t.Type)}
}
