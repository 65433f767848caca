package memory

import (
	"context"
	"fmt"
	"sync"

	"zenbudget/internal/core"
	ports "zenbudget/internal/sheets"
)

// Writer keeps the mirrored rows in memory.
type Writer struct {
	mu   sync.Mutex
	rows []core.Transaction
}

var _ ports.TransactionWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

func (w *Writer) Append(_ context.Context, txs []core.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, txs...)
	return nil
}

func (w *Writer) Delete(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, t := range w.rows {
		if t.ID == id {
			w.rows = append(w.rows[:i], w.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ports.ErrRowNotFound, id)
}

func (w *Writer) Clear(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = nil
	return nil
}

// Rows returns a copy of the mirrored transactions in sheet order.
func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.Transaction(nil), w.rows...)
}
