package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/ports"
)

// ExportWorker copies stored expenses to the ledger sink. It is driven by
// recorded events from AMQP and by a periodic sweep over unexported rows,
// so a lost message only delays an export.
type ExportWorker struct {
	queue     ports.ExportQueue
	ledger    ports.LedgerAppender
	batchSize int
	logger    *log.Logger

	// mu serializes exports so the consumer and the sweep never append
	// the same expense twice.
	mu sync.Mutex
	// unmarked holds ledger refs for rows appended while MarkExported
	// failed. A later attempt only retries the mark.
	unmarked map[int64]string
}

func NewExportWorker(queue ports.ExportQueue, ledger ports.LedgerAppender, batchSize int, logger *log.Logger) *ExportWorker {
	if batchSize < 1 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		queue:     queue,
		ledger:    ledger,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
		unmarked:  make(map[int64]string),
	}
}

// HandleRecorded processes a single expense recorded message from AMQP.
// Expenses deleted before the message arrives are skipped.
func (w *ExportWorker) HandleRecorded(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	w.logger.DebugContext(ctx, "Processing expense recorded message",
		log.FieldExpenseID, msg.ID,
		log.FieldUserID, msg.UserID,
	)

	e, err := w.queue.GetExpense(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.InfoContext(ctx, "Expense no longer exists, skipping export", log.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	_, err = w.export(ctx, e)
	return err
}

// ProcessPending exports up to one batch of unexported expenses and returns
// how many reached the ledger. Failures are logged and left for the next
// sweep.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.queue.ListPendingExport(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	exported := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		done, err := w.export(ctx, e)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to export expense",
				log.FieldExpenseID, e.ID,
				log.FieldError, err.Error(),
			)
			continue
		}
		if done {
			exported++
		}
	}
	return exported, nil
}

// Run sweeps immediately and then every interval until ctx ends.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := w.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "Export sweep failed", log.FieldError, err.Error())
		} else if n > 0 {
			w.logger.InfoContext(ctx, "Export sweep completed", "exported", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// export appends e to the ledger unless it is already there. It reports
// whether a row was written by this call.
func (w *ExportWorker) export(ctx context.Context, e core.Expense) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	already, err := w.queue.IsExported(ctx, e.ID)
	if err != nil {
		return false, fmt.Errorf("check export state: %w", err)
	}
	if already {
		w.logger.DebugContext(ctx, "Expense already exported", log.FieldExpenseID, e.ID)
		return false, nil
	}

	ref, appended := w.unmarked[e.ID]
	if !appended {
		ref, err = w.ledger.AppendExpense(ctx, e)
		if err != nil {
			return false, fmt.Errorf("append to ledger: %w", err)
		}
	}

	if err := w.queue.MarkExported(ctx, e.ID, ref); err != nil {
		// The row is already in the ledger, so the message is acked anyway
		// and the next sweep retries only the mark. The ref lives in
		// memory, so a restart in between can still append twice.
		w.unmarked[e.ID] = ref
		w.logger.ErrorContext(ctx, "Failed to mark expense exported",
			log.FieldExpenseID, e.ID,
			log.FieldSheetsRef, ref,
			log.FieldError, err.Error(),
		)
		return !appended, nil
	}
	delete(w.unmarked, e.ID)

	w.logger.InfoContext(ctx, "Expense exported",
		log.FieldExpenseID, e.ID,
		log.FieldUserID, e.UserID,
		log.FieldSheetsRef, ref,
	)
	return true, nil
}
