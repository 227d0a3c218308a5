package sqlite

// schema creates every table. Audit rows and summaries are protected by
// triggers: no DELETE, and adjustments only accept tombstone updates.
const schema = `
	-- Externally owned entities (read-only to the engine)
	CREATE TABLE IF NOT EXISTS work_orders (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'delivered',
		external_task_id TEXT,
		estimate_amount TEXT,
		final_decision_amount TEXT,
		delivery_date TEXT,
		final_amount TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS machines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timesheet_entries (
		id TEXT PRIMARY KEY,
		work_order_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		machine_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		status_flag TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_timesheet_entries_work_order
		ON timesheet_entries(work_order_id, start_at);

	-- Rates: one active record per key, updated in place
	CREATE TABLE IF NOT EXISTS rates (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		cost_per_hour TEXT NOT NULL,
		bill_per_hour TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, key)
	);

	CREATE TABLE IF NOT EXISTS activity_memos (
		work_order_id TEXT NOT NULL,
		activity TEXT NOT NULL,
		memo TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (work_order_id, activity)
	);

	-- Expenses: replaced wholesale per work order
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		work_order_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		category TEXT NOT NULL,
		cost_unit_price TEXT NOT NULL,
		cost_quantity TEXT NOT NULL,
		cost_total TEXT NOT NULL,
		bill_unit_price TEXT NOT NULL,
		bill_quantity TEXT NOT NULL,
		bill_total TEXT NOT NULL,
		file_estimate TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_work_order
		ON expenses(work_order_id, position);

	-- Adjustments: immutable audit trail, soft delete only
	CREATE TABLE IF NOT EXISTS adjustments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		work_order_id TEXT NOT NULL,
		type TEXT NOT NULL,
		activity TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_by TEXT,
		created_at TEXT NOT NULL,
		supersedes TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_by TEXT,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_work_order
		ON adjustments(work_order_id, seq);

	CREATE TRIGGER IF NOT EXISTS adjustments_no_delete
	BEFORE DELETE ON adjustments
	BEGIN
		SELECT RAISE(ABORT, 'adjustments are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS adjustments_tombstone_only
	BEFORE UPDATE ON adjustments
	WHEN NEW.id IS NOT OLD.id
	  OR NEW.work_order_id IS NOT OLD.work_order_id
	  OR NEW.type IS NOT OLD.type
	  OR NEW.activity IS NOT OLD.activity
	  OR NEW.amount IS NOT OLD.amount
	  OR NEW.reason IS NOT OLD.reason
	  OR NEW.memo IS NOT OLD.memo
	  OR NEW.created_by IS NOT OLD.created_by
	  OR NEW.created_at IS NOT OLD.created_at
	  OR NEW.supersedes IS NOT OLD.supersedes
	BEGIN
		SELECT RAISE(ABORT, 'adjustments accept tombstone updates only');
	END;

	-- Summaries: append-only snapshots
	CREATE TABLE IF NOT EXISTS aggregation_summaries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		work_order_id TEXT NOT NULL,
		activities_json TEXT NOT NULL,
		expenses_json TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		cost_total TEXT NOT NULL,
		bill_total TEXT NOT NULL,
		material_total TEXT NOT NULL,
		adjustment_total TEXT NOT NULL,
		final_amount TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_work_order
		ON aggregation_summaries(work_order_id, seq);

	CREATE TRIGGER IF NOT EXISTS summaries_no_update
	BEFORE UPDATE ON aggregation_summaries
	BEGIN
		SELECT RAISE(ABORT, 'summaries are immutable');
	END;

	CREATE TRIGGER IF NOT EXISTS summaries_no_delete
	BEFORE DELETE ON aggregation_summaries
	BEGIN
		SELECT RAISE(ABORT, 'summaries are immutable');
	END;
`

// tables lists every table, dropped by Reset.
var tables = []string{
	"aggregation_summaries", "adjustments", "expenses", "activity_memos", "rates",
	"timesheet_entries", "users", "machines", "workers", "work_orders",
}
