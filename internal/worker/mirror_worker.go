package worker

import (
	"context"
	"errors"
	"fmt"

	"zenbudget/internal/amqp"
	"zenbudget/internal/log"
	"zenbudget/internal/sheets"
	"zenbudget/internal/storage"
)

// MirrorWorker replays state events onto a spreadsheet so it always lists
// the same transactions as the budget state.
type MirrorWorker struct {
	writer sheets.TransactionWriter
	store  storage.StateStore
	logger *log.Logger
}

func NewMirrorWorker(writer sheets.TransactionWriter, store storage.StateStore, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &MirrorWorker{writer: writer, store: store, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleStateEvent applies one event. A returned error makes the consumer
// requeue the message.
func (w *MirrorWorker) HandleStateEvent(ctx context.Context, ev *amqp.StateEvent) error {
	w.logger.InfoContext(ctx, "Processing state event",
		log.FieldType, ev.Type,
		log.FieldRevision, ev.Revision)

	switch ev.Type {
	case amqp.EventTransactionsAdded:
		if err := w.writer.Append(ctx, ev.Transactions); err != nil {
			return fmt.Errorf("append transactions: %w", err)
		}
		w.logger.InfoContext(ctx, "Mirrored transactions",
			log.FieldImported, len(ev.Transactions),
			log.FieldRevision, ev.Revision)

	case amqp.EventTransactionDeleted:
		err := w.writer.Delete(ctx, ev.TransactionID)
		if errors.Is(err, sheets.ErrRowNotFound) {
			w.logger.WarnContext(ctx, "Mirrored row already gone",
				log.FieldTransactionID, ev.TransactionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete transaction %s: %w", ev.TransactionID, err)
		}
		w.logger.InfoContext(ctx, "Deleted mirrored transaction",
			log.FieldTransactionID, ev.TransactionID)

	case amqp.EventStateReset:
		if err := w.writer.Clear(ctx); err != nil {
			return fmt.Errorf("clear mirror: %w", err)
		}
		w.logger.InfoContext(ctx, "Cleared mirror", log.FieldRevision, ev.Revision)

	default:
		w.logger.WarnContext(ctx, "Ignoring unknown state event", log.FieldType, ev.Type)
	}
	return nil
}

// Resync rewrites the whole mirror from the persisted state. It recovers
// from events lost while the worker was down.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	if w.store == nil {
		return errors.New("resync needs a state store")
	}
	state, err := storage.LoadState(ctx, w.store)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := w.writer.Clear(ctx); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}
	if err := w.writer.Append(ctx, state.Transactions); err != nil {
		return fmt.Errorf("append transactions: %w", err)
	}
	w.logger.InfoContext(ctx, "Mirror resync completed", log.FieldImported, len(state.Transactions))
	return nil
}
