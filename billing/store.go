/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between billing logic and the database. Reads and
  writes are split so that calculators only ever see a Reader.

KEY INTERFACES:
  Reader:  timesheets, rates, memos, expenses, audit rows, summaries
  Writer:  the narrow set of mutations the engine performs
  TxStore: WithTx for the per-work-order unit of atomicity
  Seeder:  setup of externally owned entities (scenarios, tests)

APPEND-ONLY CONTRACT:
  - AppendAdjustment / AppendSummary are the only writes to those tables.
  - SoftDeleteAdjustment touches the tombstone fields only.
  - Expenses have no update: ReplaceExpenses deletes all rows of a work
    order and inserts the survivors, inside one transaction.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - billing/store/memory.go: in-memory for testing
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// READER
// =============================================================================

type Reader interface {
	// GetWorkOrder returns ErrWorkOrderNotFound (wrapped) when absent.
	GetWorkOrder(ctx context.Context, id WorkOrderID) (*WorkOrder, error)

	// ListTimesheetEntries returns entries with worker/machine resolved,
	// ordered by start.
	ListTimesheetEntries(ctx context.Context, workOrderID WorkOrderID) ([]TimesheetEntry, error)

	// GetRate returns ErrRateNotFound (wrapped) when no record exists.
	GetRate(ctx context.Context, key RateKey) (*RateRecord, error)
	ListRates(ctx context.Context) ([]RateRecord, error)

	ListActivityMemos(ctx context.Context, workOrderID WorkOrderID) ([]ActivityMemo, error)

	// ListExpenses returns rows ordered by position.
	ListExpenses(ctx context.Context, workOrderID WorkOrderID) ([]ExpenseItem, error)

	// ListAdjustments returns audit rows oldest first.
	ListAdjustments(ctx context.Context, workOrderID WorkOrderID, includeDeleted bool) ([]AdjustmentRecord, error)
	GetAdjustment(ctx context.Context, id AdjustmentID) (*AdjustmentRecord, error)

	// ListSummaries returns snapshots oldest first.
	ListSummaries(ctx context.Context, workOrderID WorkOrderID) ([]AggregationSummary, error)

	UserExists(ctx context.Context, id string) (bool, error)
}

// =============================================================================
// WRITER
// =============================================================================

type Writer interface {
	// UpdateWorkOrder writes status, pass-through fields and final amount.
	// Returns ErrWorkOrderNotFound when absent.
	UpdateWorkOrder(ctx context.Context, wo WorkOrder) error

	// UpsertRate inserts or updates a rate record in place.
	UpsertRate(ctx context.Context, r RateRecord) error

	UpsertActivityMemo(ctx context.Context, m ActivityMemo) error

	DeleteExpenses(ctx context.Context, workOrderID WorkOrderID) error
	InsertExpense(ctx context.Context, e ExpenseItem) error

	AppendAdjustment(ctx context.Context, a AdjustmentRecord) error

	// SoftDeleteAdjustment sets the tombstone fields. Returns
	// ErrAdjustmentNotFound when the row is absent or already deleted.
	SoftDeleteAdjustment(ctx context.Context, id AdjustmentID, deletedBy *string, at time.Time) error

	AppendSummary(ctx context.Context, s AggregationSummary) error
}

type Store interface {
	Reader
	Writer
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// SEEDER - Externally owned entities
// =============================================================================

// Seeder writes the entities this engine only reads: work orders, workers,
// machines, users and committed timesheet entries.
type Seeder interface {
	SaveWorkOrder(ctx context.Context, wo WorkOrder) error
	SaveWorker(ctx context.Context, w Worker) error
	SaveMachine(ctx context.Context, m Machine) error
	SaveUser(ctx context.Context, u User) error
	SaveTimesheetEntry(ctx context.Context, e TimesheetEntry) error
	Reset(ctx context.Context) error
}
