/*
Package sqlite provides a SQLite-backed implementation of the billing store.

PURPOSE:
  Implements billing.TxStore and billing.Seeder using SQLite. The same
  queries run against the database handle or an open transaction, so every
  read made inside WithTx sees the transaction's own writes.

APPEND-ONLY ENFORCEMENT:
  Enforced by triggers in schema.go, not only by the Go code:
  - adjustments: no DELETE; UPDATE may only touch the tombstone columns
  - aggregation_summaries: no UPDATE, no DELETE
  Expenses are the one table with a real DELETE (wholesale replacement).

KEY TABLES:
  work_orders, workers, machines, users, timesheet_entries: external inputs
  rates:                 one row per (kind, key), updated in place
  activity_memos:        one row per (work order, activity)
  expenses:              replaced per work order
  adjustments:           audit trail, ordered by seq
  aggregation_summaries: frozen snapshots, ordered by seq

ENCODING:
  Decimals are stored as TEXT (decimal.String) to avoid float rounding.
  Timestamps are RFC3339Nano in UTC. Summary activities and expenses are
  stored as JSON.

CONCURRENCY:
  The pool is limited to one connection: ":memory:" databases are
  per-connection, and SQLite allows a single writer anyway. WithTx holds
  the store mutex for its whole duration.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// Store implements billing.TxStore and billing.Seeder using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements billing.Store on top of a querier.
type queries struct {
	q querier
}

// New creates a new SQLite store with the given database path, creating
// its parent directory when missing. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// WORK ORDERS
// =============================================================================

func (r *queries) GetWorkOrder(ctx context.Context, id billing.WorkOrderID) (*billing.WorkOrder, error) {
	var (
		wo                                   billing.WorkOrder
		status                               string
		taskID, estimate, decision, delivery sql.NullString
		finalAmount                          sql.NullString
		createdAt, updatedAt                 string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, title, status, external_task_id, estimate_amount, final_decision_amount,
		       delivery_date, final_amount, created_at, updated_at
		FROM work_orders WHERE id = ?
	`, id).Scan(&wo.ID, &wo.Title, &status, &taskID, &estimate, &decision,
		&delivery, &finalAmount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.WorkOrderNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}

	wo.Status = billing.Status(status)
	wo.ExternalTaskID = taskID.String
	wo.EstimateAmount = parseNullDecimal(estimate)
	wo.FinalDecisionAmount = parseNullDecimal(decision)
	wo.FinalAmount = parseNullDecimal(finalAmount)
	if delivery.Valid {
		t := parseTime(delivery.String)
		wo.DeliveryDate = &t
	}
	wo.CreatedAt = parseTime(createdAt)
	wo.UpdatedAt = parseTime(updatedAt)
	return &wo, nil
}

func (r *queries) UpdateWorkOrder(ctx context.Context, wo billing.WorkOrder) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE work_orders
		SET status = ?, estimate_amount = ?, final_decision_amount = ?,
		    delivery_date = ?, final_amount = ?, updated_at = ?
		WHERE id = ?
	`, string(wo.Status), nullDecimal(wo.EstimateAmount), nullDecimal(wo.FinalDecisionAmount),
		nullTime(wo.DeliveryDate), nullDecimal(wo.FinalAmount), formatTime(wo.UpdatedAt), wo.ID)
	if err != nil {
		return fmt.Errorf("failed to update work order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.WorkOrderNotFound(wo.ID)
	}
	return nil
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func (r *queries) ListTimesheetEntries(ctx context.Context, id billing.WorkOrderID) ([]billing.TimesheetEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT t.id, t.work_order_id, t.start_at, t.end_at, t.worker_id,
		       COALESCE(w.display_name, ''), t.machine_id, COALESCE(m.name, ''),
		       t.description, t.status_flag
		FROM timesheet_entries t
		LEFT JOIN workers w ON w.id = t.worker_id
		LEFT JOIN machines m ON m.id = t.machine_id
		WHERE t.work_order_id = ?
		ORDER BY t.start_at ASC, t.id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query timesheet entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.TimesheetEntry
	for rows.Next() {
		var (
			e           billing.TimesheetEntry
			start, end  string
			machineID   sql.NullString
			machineName string
			flag        string
		)
		if err := rows.Scan(&e.ID, &e.WorkOrderID, &start, &end, &e.Worker.ID,
			&e.Worker.DisplayName, &machineID, &machineName, &e.Description, &flag); err != nil {
			return nil, fmt.Errorf("failed to scan timesheet entry: %w", err)
		}
		e.Start = parseTime(start)
		e.End = parseTime(end)
		e.Flag = billing.StatusFlag(flag)
		if machineID.Valid && machineID.String != "" {
			e.Machine = &billing.Machine{ID: machineID.String, Name: machineName}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// RATES AND MEMOS
// =============================================================================

func (r *queries) GetRate(ctx context.Context, key billing.RateKey) (*billing.RateRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT kind, key, cost_per_hour, bill_per_hour, memo, updated_at
		FROM rates WHERE kind = ? AND key = ?
	`, string(key.Kind), key.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	rates, err := scanRates(rows)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, billing.RateNotFound(key)
	}
	return &rates[0], nil
}

func (r *queries) ListRates(ctx context.Context) ([]billing.RateRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT kind, key, cost_per_hour, bill_per_hour, memo, updated_at
		FROM rates ORDER BY kind ASC, key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	return scanRates(rows)
}

func scanRates(rows *sql.Rows) ([]billing.RateRecord, error) {
	defer rows.Close()

	var out []billing.RateRecord
	for rows.Next() {
		var (
			rec              billing.RateRecord
			kind, cost, bill string
			updatedAt        string
		)
		if err := rows.Scan(&kind, &rec.Key, &cost, &bill, &rec.Memo, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rec.Kind = billing.RateKind(kind)
		rec.CostPerHour = parseDecimal(cost)
		rec.BillPerHour = parseDecimal(bill)
		rec.UpdatedAt = parseTime(updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *queries) UpsertRate(ctx context.Context, rec billing.RateRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO rates (kind, key, cost_per_hour, bill_per_hour, memo, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET
			cost_per_hour = excluded.cost_per_hour,
			bill_per_hour = excluded.bill_per_hour,
			memo = excluded.memo,
			updated_at = excluded.updated_at
	`, string(rec.Kind), rec.Key, rec.CostPerHour.String(), rec.BillPerHour.String(),
		rec.Memo, formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert rate: %w", err)
	}
	return nil
}

func (r *queries) ListActivityMemos(ctx context.Context, id billing.WorkOrderID) ([]billing.ActivityMemo, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT work_order_id, activity, memo, updated_at
		FROM activity_memos WHERE work_order_id = ?
		ORDER BY activity ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity memos: %w", err)
	}
	defer rows.Close()

	var out []billing.ActivityMemo
	for rows.Next() {
		var (
			m                   billing.ActivityMemo
			activity, updatedAt string
		)
		if err := rows.Scan(&m.WorkOrderID, &activity, &m.Memo, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity memo: %w", err)
		}
		m.Activity = billing.ActivityCode(activity)
		m.UpdatedAt = parseTime(updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *queries) UpsertActivityMemo(ctx context.Context, m billing.ActivityMemo) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO activity_memos (work_order_id, activity, memo, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(work_order_id, activity) DO UPDATE SET
			memo = excluded.memo,
			updated_at = excluded.updated_at
	`, m.WorkOrderID, string(m.Activity), m.Memo, formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert activity memo: %w", err)
	}
	return nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func (r *queries) ListExpenses(ctx context.Context, id billing.WorkOrderID) ([]billing.ExpenseItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, work_order_id, position, category,
		       cost_unit_price, cost_quantity, cost_total,
		       bill_unit_price, bill_quantity, bill_total,
		       file_estimate, memo, created_at
		FROM expenses WHERE work_order_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []billing.ExpenseItem
	for rows.Next() {
		var (
			e                            billing.ExpenseItem
			category                     string
			costUnit, costQty, costTotal string
			billUnit, billQty, billTotal string
			fileEstimate, createdAt      string
		)
		if err := rows.Scan(&e.ID, &e.WorkOrderID, &e.Position, &category,
			&costUnit, &costQty, &costTotal, &billUnit, &billQty, &billTotal,
			&fileEstimate, &e.Memo, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Category = billing.ExpenseCategory(category)
		e.CostUnitPrice = parseDecimal(costUnit)
		e.CostQuantity = parseDecimal(costQty)
		e.CostTotal = parseDecimal(costTotal)
		e.BillUnitPrice = parseDecimal(billUnit)
		e.BillQuantity = parseDecimal(billQty)
		e.BillTotal = parseDecimal(billTotal)
		e.FileEstimate = parseDecimal(fileEstimate)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *queries) DeleteExpenses(ctx context.Context, id billing.WorkOrderID) error {
	if _, err := r.q.ExecContext(ctx, "DELETE FROM expenses WHERE work_order_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete expenses: %w", err)
	}
	return nil
}

func (r *queries) InsertExpense(ctx context.Context, e billing.ExpenseItem) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO expenses
		(id, work_order_id, position, category, cost_unit_price, cost_quantity, cost_total,
		 bill_unit_price, bill_quantity, bill_total, file_estimate, memo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.WorkOrderID, e.Position, string(e.Category),
		e.CostUnitPrice.String(), e.CostQuantity.String(), e.CostTotal.String(),
		e.BillUnitPrice.String(), e.BillQuantity.String(), e.BillTotal.String(),
		e.FileEstimate.String(), e.Memo, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

const adjustmentColumns = `
	id, work_order_id, type, activity, amount, reason, memo, created_by,
	created_at, supersedes, is_deleted, deleted_by, deleted_at`

func (r *queries) ListAdjustments(ctx context.Context, id billing.WorkOrderID, includeDeleted bool) ([]billing.AdjustmentRecord, error) {
	query := "SELECT " + adjustmentColumns + " FROM adjustments WHERE work_order_id = ?"
	if !includeDeleted {
		query += " AND is_deleted = FALSE"
	}
	query += " ORDER BY seq ASC"

	rows, err := r.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	return scanAdjustments(rows)
}

func (r *queries) GetAdjustment(ctx context.Context, id billing.AdjustmentID) (*billing.AdjustmentRecord, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+adjustmentColumns+" FROM adjustments WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustment: %w", err)
	}
	recs, err := scanAdjustments(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, billing.AdjustmentNotFound(id)
	}
	return &recs[0], nil
}

func scanAdjustments(rows *sql.Rows) ([]billing.AdjustmentRecord, error) {
	defer rows.Close()

	var out []billing.AdjustmentRecord
	for rows.Next() {
		var (
			a                     billing.AdjustmentRecord
			typ, activity, amount string
			createdBy, supersedes sql.NullString
			deletedBy, deletedAt  sql.NullString
			createdAt             string
		)
		if err := rows.Scan(&a.ID, &a.WorkOrderID, &typ, &activity, &amount, &a.Reason,
			&a.Memo, &createdBy, &createdAt, &supersedes, &a.IsDeleted, &deletedBy, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Type = billing.AdjustmentType(typ)
		a.Activity = billing.ActivityCode(activity)
		a.Amount = parseDecimal(amount)
		a.CreatedBy = stringPtr(createdBy)
		a.CreatedAt = parseTime(createdAt)
		a.Supersedes = billing.AdjustmentID(supersedes.String)
		a.DeletedBy = stringPtr(deletedBy)
		if deletedAt.Valid {
			t := parseTime(deletedAt.String)
			a.DeletedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *queries) AppendAdjustment(ctx context.Context, a billing.AdjustmentRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO adjustments
		(id, work_order_id, type, activity, amount, reason, memo, created_by, created_at, supersedes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.WorkOrderID, string(a.Type), string(a.Activity), a.Amount.String(),
		a.Reason, a.Memo, nullStringPtr(a.CreatedBy), formatTime(a.CreatedAt),
		nullString(string(a.Supersedes)))
	if err != nil {
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

func (r *queries) SoftDeleteAdjustment(ctx context.Context, id billing.AdjustmentID, by *string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE adjustments SET is_deleted = TRUE, deleted_by = ?, deleted_at = ?
		WHERE id = ? AND is_deleted = FALSE
	`, nullStringPtr(by), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to delete adjustment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.AdjustmentNotFound(id)
	}
	return nil
}

// =============================================================================
// SUMMARIES (append-only)
// =============================================================================

func (r *queries) ListSummaries(ctx context.Context, id billing.WorkOrderID) ([]billing.AggregationSummary, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, work_order_id, activities_json, expenses_json, total_hours, cost_total,
		       bill_total, material_total, adjustment_total, final_amount, created_by, created_at
		FROM aggregation_summaries WHERE work_order_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var out []billing.AggregationSummary
	for rows.Next() {
		var (
			s                                billing.AggregationSummary
			activitiesJSON, expensesJSON     string
			hours, cost, bill, material, adj string
			final, createdAt                 string
			createdBy                        sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.WorkOrderID, &activitiesJSON, &expensesJSON,
			&hours, &cost, &bill, &material, &adj, &final, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if err := json.Unmarshal([]byte(activitiesJSON), &s.Activities); err != nil {
			return nil, fmt.Errorf("failed to decode summary activities: %w", err)
		}
		if err := json.Unmarshal([]byte(expensesJSON), &s.Expenses); err != nil {
			return nil, fmt.Errorf("failed to decode summary expenses: %w", err)
		}
		s.TotalHours = parseDecimal(hours)
		s.CostTotal = parseDecimal(cost)
		s.BillTotal = parseDecimal(bill)
		s.MaterialTotal = parseDecimal(material)
		s.AdjustmentTotal = parseDecimal(adj)
		s.FinalAmount = parseDecimal(final)
		s.CreatedBy = stringPtr(createdBy)
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *queries) AppendSummary(ctx context.Context, s billing.AggregationSummary) error {
	activitiesJSON, err := json.Marshal(s.Activities)
	if err != nil {
		return fmt.Errorf("failed to encode summary activities: %w", err)
	}
	expensesJSON, err := json.Marshal(s.Expenses)
	if err != nil {
		return fmt.Errorf("failed to encode summary expenses: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO aggregation_summaries
		(id, work_order_id, activities_json, expenses_json, total_hours, cost_total,
		 bill_total, material_total, adjustment_total, final_amount, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.WorkOrderID, string(activitiesJSON), string(expensesJSON),
		s.TotalHours.String(), s.CostTotal.String(), s.BillTotal.String(),
		s.MaterialTotal.String(), s.AdjustmentTotal.String(), s.FinalAmount.String(),
		nullStringPtr(s.CreatedBy), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append summary: %w", err)
	}
	return nil
}

// =============================================================================
// USERS
// =============================================================================

func (r *queries) UserExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

// =============================================================================
// SEEDER
// =============================================================================

func (s *Store) SaveWorkOrder(ctx context.Context, wo billing.WorkOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO work_orders
		(id, title, status, external_task_id, estimate_amount, final_decision_amount,
		 delivery_date, final_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, wo.ID, wo.Title, string(wo.Status), nullString(wo.ExternalTaskID),
		nullDecimal(wo.EstimateAmount), nullDecimal(wo.FinalDecisionAmount),
		nullTime(wo.DeliveryDate), nullDecimal(wo.FinalAmount),
		formatTime(wo.CreatedAt), formatTime(wo.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save work order: %w", err)
	}
	return nil
}

func (s *Store) SaveWorker(ctx context.Context, w billing.Worker) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO workers (id, display_name) VALUES (?, ?)", w.ID, w.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

func (s *Store) SaveMachine(ctx context.Context, m billing.Machine) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO machines (id, name) VALUES (?, ?)", m.ID, m.Name)
	if err != nil {
		return fmt.Errorf("failed to save machine: %w", err)
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, u billing.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO users (id, name) VALUES (?, ?)", u.ID, u.Name)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) SaveTimesheetEntry(ctx context.Context, e billing.TimesheetEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO timesheet_entries
		(id, work_order_id, start_at, end_at, worker_id, machine_id, description, status_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.WorkOrderID, formatTime(e.Start), formatTime(e.End), e.Worker.ID,
		nullString(e.MachineRef()), e.Description, string(e.Flag))
	if err != nil {
		return fmt.Errorf("failed to save timesheet entry: %w", err)
	}
	return nil
}

// Reset drops every table and recreates the schema (for testing/demo).
// Dropping is the only way past the append-only triggers.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return err
		}
	}
	return s.migrate(ctx)
}

var (
	_ billing.TxStore = (*Store)(nil)
	_ billing.Seeder  = (*Store)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d := parseDecimal(ns.String)
	return &d
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
