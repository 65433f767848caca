package worker

import (
	"context"
	"errors"
	"testing"

	"zenbudget/internal/amqp"
	"zenbudget/internal/core"
	"zenbudget/internal/sheets/memory"
	"zenbudget/internal/storage"
)

type failingWriter struct{ err error }

func (f failingWriter) Append(context.Context, []core.Transaction) error { return f.err }
func (f failingWriter) Delete(context.Context, string) error             { return f.err }
func (f failingWriter) Clear(context.Context) error                      { return f.err }

func TestMirrorWorker_HandleStateEvent(t *testing.T) {
	ctx := context.Background()
	w := memory.New()
	mw := NewMirrorWorker(w, nil, nil)

	txs := []core.Transaction{{ID: "a", Description: "KROGER"}, {ID: "b", Description: "SHELL OIL"}}
	steps := []struct {
		name    string
		ev      *amqp.StateEvent
		wantIDs []string
	}{
		{"added", amqp.NewTransactionsAdded(1, txs), []string{"a", "b"}},
		{"deleted", amqp.NewTransactionDeleted(2, "a"), []string{"b"}},
		{"deleted twice is acked", amqp.NewTransactionDeleted(3, "a"), []string{"b"}},
		{"unknown type ignored", &amqp.StateEvent{Type: "budget.updated"}, []string{"b"}},
		{"reset", amqp.NewStateReset(4), nil},
	}
	for _, st := range steps {
		if err := mw.HandleStateEvent(ctx, st.ev); err != nil {
			t.Fatalf("%s: HandleStateEvent() error = %v", st.name, err)
		}
		rows := w.Rows()
		if len(rows) != len(st.wantIDs) {
			t.Fatalf("%s: rows = %+v, want %v", st.name, rows, st.wantIDs)
		}
		for i, id := range st.wantIDs {
			if rows[i].ID != id {
				t.Fatalf("%s: row %d = %s, want %s", st.name, i, rows[i].ID, id)
			}
		}
	}
}

func TestMirrorWorker_WriterErrorsRequeue(t *testing.T) {
	boom := errors.New("quota")
	mw := NewMirrorWorker(failingWriter{err: boom}, nil, nil)
	events := []*amqp.StateEvent{
		amqp.NewTransactionsAdded(1, []core.Transaction{{ID: "a"}}),
		amqp.NewTransactionDeleted(2, "a"),
		amqp.NewStateReset(3),
	}
	for _, ev := range events {
		if err := mw.HandleStateEvent(context.Background(), ev); !errors.Is(err, boom) {
			t.Fatalf("%s: error = %v, want %v", ev.Type, err, boom)
		}
	}
}

func TestMirrorWorker_Resync(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := core.EmptyState()
	s.Transactions = []core.Transaction{{ID: "x", Type: core.Expense, Amount: core.NewMoney(1, 0)}}
	if err := storage.SaveState(ctx, store, s); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	w := memory.New()
	_ = w.Append(ctx, []core.Transaction{{ID: "stale"}})
	if err := NewMirrorWorker(w, store, nil).Resync(ctx); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}
	rows := w.Rows()
	if len(rows) != 1 || rows[0].ID != "x" {
		t.Fatalf("rows = %+v", rows)
	}

	if err := NewMirrorWorker(w, nil, nil).Resync(ctx); err == nil {
		t.Fatal("Resync without store should fail")
	}

	corrupt := storage.NewMemoryStore()
	_ = corrupt.Save(ctx, []byte("{not json"))
	if err := NewMirrorWorker(w, corrupt, nil).Resync(ctx); err == nil {
		t.Fatal("Resync over corrupt state should fail")
	}
	if rows := w.Rows(); len(rows) != 1 {
		t.Fatalf("mirror changed after failed resync: %+v", rows)
	}
}
